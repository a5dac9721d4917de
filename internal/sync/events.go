package sync

// Stage identifies the part of a full sync currently running.
type Stage string

const (
	StageProducts  Stage = "products"
	StageGroups    Stage = "groups"
	StageTables    Stage = "tables"
	StageReference Stage = "reference"
	StageOrders    Stage = "orders"
)

// Progress is reported after each completed stage. Percent is cumulative
// over the whole pass: the four pull stages land at 20, 40, 60 and 80, the
// push at 100.
type Progress struct {
	Stage   Stage
	Percent int
}

// Stats summarizes one full sync pass.
type Stats struct {
	PulledProducts  int
	PulledGroups    int
	PulledTables    int
	PulledAreas     int
	PulledModifiers int
	PulledCourses   int

	PushedOrders int
	FailedOrders int
}

// Pulled returns the total number of rows written into the mirror.
func (s Stats) Pulled() int {
	return s.PulledProducts + s.PulledGroups + s.PulledTables +
		s.PulledAreas + s.PulledModifiers + s.PulledCourses
}
