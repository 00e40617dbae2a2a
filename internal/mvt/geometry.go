package mvt

// Geometry command ids
const (
	CmdMoveTo    = 1
	CmdLineTo    = 2
	CmdClosePath = 7
)

// Command packs a command id and repeat count into a command integer
func Command(id, count uint32) uint32 {
	return (count << 3) | (id & 0x7)
}

// decodeGeometry expands a command stream into absolute rings. The cursor
// starts at (0,0) and accumulates across commands. MoveTo starts a new ring;
// ClosePath appends the ring's first point and ends the ring.
func decodeGeometry(cmds []uint64, diag *Diagnostics) []Ring {
	var (
		rings []Ring
		cur   Ring
		x, y  int64
	)

	flush := func() {
		if len(cur) > 0 {
			rings = append(rings, cur)
			cur = nil
		}
	}

	for i := 0; i < len(cmds); {
		c := cmds[i]
		i++
		id := c & 0x7
		count := c >> 3

		switch id {
		case CmdMoveTo, CmdLineTo:
			if id == CmdMoveTo {
				flush()
			}
			avail := uint64(len(cmds)-i) / 2
			if count > avail {
				diag.BadCommands++
				count = avail
			}
			for k := uint64(0); k < count; k++ {
				x += UnZigZag(cmds[i])
				y += UnZigZag(cmds[i+1])
				i += 2
				cur = append(cur, Point{X: x, Y: y})
			}
		case CmdClosePath:
			if len(cur) > 0 {
				cur = append(cur, cur[0])
			}
			flush()
		default:
			diag.BadCommands++
			i = len(cmds)
		}
	}
	flush()

	return rings
}
