package m3w

// Link associates a peeled point with the nearest point that survived the
// iteration it was peeled in, both by original index.
type Link struct {
	From     int
	To       int
	Distance float64
}

// associate finds, for each peeled point, the first neighbor (nearest first)
// that is still alive, scanning only neighbors within the peeled point's
// link threshold. Neighbors that were peeled this round or earlier are
// skipped; the scan stops at the first neighbor beyond the threshold.
// Points with no such neighbor are returned as unlinked.
func associate(peeled []int, full *Neighbors, alive []bool, thresholds []float64) (links []Link, unlinked []int) {
	for _, o := range peeled {
		limit := thresholds[o]
		found := false
		for j, nbr := range full.Indices[o] {
			d := full.Distances[o][j]
			if d > limit {
				break
			}
			if !alive[nbr] {
				continue
			}
			links = append(links, Link{From: o, To: nbr, Distance: d})
			found = true
			break
		}
		if !found {
			unlinked = append(unlinked, o)
		}
	}
	return links, unlinked
}
