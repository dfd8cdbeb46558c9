package filterentry

// Counters tracks per-filter operation statistics.
// They are advisory: concurrent readers may race on the increments, and
// exact counts are not a correctness requirement.
type Counters struct {
	SetHits     uint64
	SetMisses   uint64
	CheckHits   uint64
	CheckMisses uint64
	PageIns     uint64
	PageOuts    uint64
}

// Sets returns the total number of set (add) operations observed.
func (c Counters) Sets() uint64 { return c.SetHits + c.SetMisses }

// Checks returns the total number of check (contains) operations observed.
func (c Counters) Checks() uint64 { return c.CheckHits + c.CheckMisses }
