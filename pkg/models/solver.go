package models

import (
	"encoding/json"
	"fmt"
)

// Cell is an integer coordinate in the face-centered-cubic lattice.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Add returns the cell translated by d.
func (c Cell) Add(d Cell) Cell {
	return Cell{c.X + d.X, c.Y + d.Y, c.Z + d.Z}
}

// Sub returns the translation from d to c.
func (c Cell) Sub(d Cell) Cell {
	return Cell{c.X - d.X, c.Y - d.Y, c.Z - d.Z}
}

// Key renders the cell as a compact "x,y,z" string for snapshots and
// signatures.
func (c Cell) Key() string {
	return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z)
}

// CellFromKey parses the "x,y,z" form produced by Key.
func CellFromKey(key string) (Cell, error) {
	var c Cell
	if _, err := fmt.Sscanf(key, "%d,%d,%d", &c.X, &c.Y, &c.Z); err != nil {
		return Cell{}, fmt.Errorf("invalid cell key %q: %v", key, err)
	}
	return c, nil
}

// Placement is a committed piece: which piece, in which orientation, shifted
// by which translation. The four covered cells are derived, not stored.
type Placement struct {
	PieceID       string `json:"pieceId"`
	OrientationID int    `json:"orientationId"`
	Translation   Cell   `json:"translation"`
}

// RemainingInfinite marks a piece with unlimited inventory.
const RemainingInfinite int64 = -1

// PieceCount is one inventory entry. The wire format accepts either a number
// or the literal string "infinite" for the remaining count.
type PieceCount struct {
	PieceID   string `json:"pieceId"`
	Remaining int64  `json:"remaining"`
}

func (p *PieceCount) UnmarshalJSON(data []byte) error {
	var raw struct {
		PieceID   string          `json:"pieceId"`
		Remaining json.RawMessage `json:"remaining"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.PieceID = raw.PieceID
	if len(raw.Remaining) == 0 {
		p.Remaining = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Remaining, &s); err == nil {
		if s != "infinite" {
			return fmt.Errorf("invalid remaining count %q", s)
		}
		p.Remaining = RemainingInfinite
		return nil
	}
	return json.Unmarshal(raw.Remaining, &p.Remaining)
}

func (p PieceCount) MarshalJSON() ([]byte, error) {
	if p.Remaining == RemainingInfinite {
		return json.Marshal(struct {
			PieceID   string `json:"pieceId"`
			Remaining string `json:"remaining"`
		}{p.PieceID, "infinite"})
	}
	return json.Marshal(struct {
		PieceID   string `json:"pieceId"`
		Remaining int64  `json:"remaining"`
	}{p.PieceID, p.Remaining})
}

// Inventory modes accepted in SearchInput.Mode.
const (
	ModeUnlimited  = "unlimited"
	ModeOneOfEach  = "oneOfEach"
	ModeSingleType = "singleType"
	ModeCustom     = "custom"
)

// SearchInput is the full description of one position to search: the
// container universe, what is already placed, what is still open, and the
// piece inventory policy.
type SearchInput struct {
	ContainerID     string       `json:"containerId,omitempty"`
	ContainerCells  []Cell       `json:"containerCells"`
	PlacedPieces    []Placement  `json:"placedPieces,omitempty"`
	EmptyCells      []Cell       `json:"emptyCells,omitempty"`
	RemainingPieces []PieceCount `json:"remainingPieces,omitempty"`
	Mode            string       `json:"mode,omitempty"`
	SinglePieceID   string       `json:"singlePieceId,omitempty"`
	TargetCell      *Cell        `json:"targetCell,omitempty"`
}

// Move-ordering strategies.
const (
	OrderMostConstrained = "mostConstrained"
	OrderScan            = "scan"
)

// PruningSettings toggles the two necessary-condition checks independently.
type PruningSettings struct {
	Connectivity bool `json:"connectivity"`
	MultipleOf4  bool `json:"multipleOf4"`
}

// PieceFilter restricts and sizes the usable piece set.
type PieceFilter struct {
	Allow     []string         `json:"allow,omitempty"`
	Inventory map[string]int64 `json:"inventory,omitempty"`
}

// SearchSettings tune one engine run. Zero values are normalized to safe
// defaults by the solver rather than rejected.
type SearchSettings struct {
	MaxSolutions     int             `json:"maxSolutions"`
	TimeoutMs        int64           `json:"timeoutMs"`
	MoveOrdering     string          `json:"moveOrdering"`
	Pruning          PruningSettings `json:"pruning"`
	StatusIntervalMs int64           `json:"statusIntervalMs"`
	PauseOnSolution  bool            `json:"pauseOnSolution"`
	UniqueSolutions  bool            `json:"uniqueSolutions"`
	Pieces           PieceFilter     `json:"pieces"`
}

// Terminal reasons for a finished search.
const (
	DoneComplete = "complete"
	DoneTimeout  = "timeout"
	DoneLimit    = "limit"
	DoneCanceled = "canceled"
)

// Event types emitted on the run event stream.
const (
	EventStatus   = "status"
	EventSolution = "solution"
	EventDone     = "done"
)

// StatusEvent is a periodic snapshot of the search frontier.
type StatusEvent struct {
	Nodes     int64       `json:"nodes"`
	Pruned    int64       `json:"pruned"`
	Solutions int64       `json:"solutions"`
	Depth     int         `json:"depth"`
	ElapsedMs int64       `json:"elapsedMs"`
	Stack     []Placement `json:"stack"`
}

// SolutionEvent carries one complete tiling.
type SolutionEvent struct {
	Placements []Placement `json:"placements"`
	Signature  string      `json:"signature"`
}

// DoneEvent terminates the stream for one run.
type DoneEvent struct {
	Reason string `json:"reason"`
}

// Event is the single envelope delivered in production order on a run's
// event channel and over the websocket stream.
type Event struct {
	Type     string         `json:"type"`
	Status   *StatusEvent   `json:"status,omitempty"`
	Solution *SolutionEvent `json:"solution,omitempty"`
	Done     *DoneEvent     `json:"done,omitempty"`
}

// SnapshotSchema is bumped whenever the snapshot layout changes shape.
const SnapshotSchema = 1

// SnapshotFrame serializes one level of backtracking state, including the
// cursor positions needed to resume exactly where the frame left off.
type SnapshotFrame struct {
	Target        int    `json:"target"`
	PieceCursor   int    `json:"pieceCursor"`
	OrientCursor  int    `json:"orientCursor"`
	AnchorCursor  int    `json:"anchorCursor"`
	Committed     bool   `json:"committed"`
	PieceID       string `json:"pieceId,omitempty"`
	OrientationID int    `json:"orientationId,omitempty"`
	Translation   Cell   `json:"translation"`
	MaskHex       string `json:"maskHex,omitempty"`
}

// Snapshot is a plain serializable capture of a paused search, sufficient to
// resume it in a fresh engine instance or persist it across processes.
type Snapshot struct {
	Schema       int              `json:"schema"`
	ContainerID  string           `json:"containerId,omitempty"`
	N            int              `json:"n"`
	Keys         []string         `json:"keys"`
	OccupancyHex string           `json:"occupancyHex"`
	Remaining    map[string]int64 `json:"remaining"`
	PieceOrder   []string         `json:"pieceOrder"`
	Stack        []SnapshotFrame  `json:"stack"`
	Nodes        int64            `json:"nodes"`
	Pruned       int64            `json:"pruned"`
	Solutions    int64            `json:"solutions"`
	Seen         []string         `json:"seenSignatures,omitempty"`
	ElapsedMs    int64            `json:"elapsedMs"`
	Settings     SearchSettings   `json:"settings"`
}

// Check verdicts reported to callers. Timeouts map to unknown, never to
// success or failure.
const (
	VerdictSolvable   = "solvable"
	VerdictUnsolvable = "unsolvable"
	VerdictUnknown    = "unknown"
)

// Check modes.
const (
	CheckModeFull        = "full"
	CheckModeLightweight = "lightweight"
)

// CheckResult is the structured answer to one solvability check.
type CheckResult struct {
	Solvable             bool    `json:"solvable"`
	Verdict              string  `json:"verdict"`
	Reason               string  `json:"reason,omitempty"`
	Mode                 string  `json:"mode"`
	EmptyCount           int     `json:"emptyCount"`
	SolutionCount        int64   `json:"solutionCount,omitempty"`
	DefiniteFailure      bool    `json:"definiteFailure,omitempty"`
	EstimatedSearchSpace float64 `json:"estimatedSearchSpace,omitempty"`
	ValidNextMoveCount   int     `json:"validNextMoveCount,omitempty"`
}

// HintResult names one legal placement covering the requested cell.
type HintResult struct {
	PieceID       string `json:"pieceId"`
	OrientationID int    `json:"orientationId"`
	Anchor        Cell   `json:"anchor"`
}

// CheckRequest asks the worker to evaluate one position. EmptyThreshold
// selects lightweight mode for open-cell counts above it.
type CheckRequest struct {
	RequestID      string      `json:"requestId"`
	Input          SearchInput `json:"input"`
	TimeoutMs      int64       `json:"timeoutMs"`
	EmptyThreshold int         `json:"emptyThreshold"`
}

// CancelRequest aborts a previously issued check by id.
type CancelRequest struct {
	RequestID string `json:"requestId"`
}

// CheckResponse is the worker's reply, always tagged with the original
// request id. Exactly one of Result or Error is set.
type CheckResponse struct {
	RequestID string       `json:"requestId"`
	Result    *CheckResult `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
}
