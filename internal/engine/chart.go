/**
 * @description
 * Price-history downsampling for chart queries.
 * Largest-triangle-three-buckets selection: first and last points are
 * always preserved and each bucket keeps the point that contributes the
 * most visual area, so the curve's shape survives the reduction.
 */

package engine

// Downsample reduces points to at most maxPoints while preserving the first
// and last points and the series' visual shape. The input must be ordered
// by timestamp.
func Downsample(points []PricePoint, maxPoints int) []PricePoint {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}
	if maxPoints == 1 {
		return points[:1]
	}
	if maxPoints == 2 {
		return []PricePoint{points[0], points[len(points)-1]}
	}

	sampled := make([]PricePoint, 0, maxPoints)
	sampled = append(sampled, points[0])

	// Middle points are split into maxPoints-2 buckets.
	bucketSize := float64(len(points)-2) / float64(maxPoints-2)
	prev := points[0]

	for i := 0; i < maxPoints-2; i++ {
		start := int(float64(i)*bucketSize) + 1
		end := int(float64(i+1)*bucketSize) + 1
		if end >= len(points)-1 {
			end = len(points) - 1
		}

		// Average of the next bucket anchors the triangle.
		nextStart := end
		nextEnd := int(float64(i+2)*bucketSize) + 1
		if nextEnd > len(points)-1 {
			nextEnd = len(points) - 1
		}
		if nextStart >= nextEnd {
			nextStart = nextEnd - 1
		}
		var avgX, avgY float64
		n := float64(nextEnd - nextStart + 1)
		for j := nextStart; j <= nextEnd; j++ {
			avgX += float64(points[j].Timestamp.UnixMilli())
			avgY += points[j].Probability
		}
		avgX /= n
		avgY /= n

		best := start
		bestArea := -1.0
		px := float64(prev.Timestamp.UnixMilli())
		py := prev.Probability
		for j := start; j < end; j++ {
			x := float64(points[j].Timestamp.UnixMilli())
			y := points[j].Probability
			area := abs((px-avgX)*(y-py) - (px-x)*(avgY-py))
			if area > bestArea {
				bestArea = area
				best = j
			}
		}

		sampled = append(sampled, points[best])
		prev = points[best]
	}

	sampled = append(sampled, points[len(points)-1])
	return sampled
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
