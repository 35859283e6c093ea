package navigation

import "math/rand"

// chunkCoord addresses a ChunkSize×ChunkSize block of cells.
type chunkCoord struct {
	Row, Col int
}

// chunkQueue is a FIFO of dirty chunks with duplicate suppression.
type chunkQueue struct {
	rows, cols int
	queue      []chunkCoord
	head       int
	queued     []bool // indexed by chunk row*cols+col
}

func newChunkQueue(rows, cols int) *chunkQueue {
	return &chunkQueue{
		rows:   rows,
		cols:   cols,
		queued: make([]bool, rows*cols),
	}
}

func (q *chunkQueue) len() int {
	return len(q.queue) - q.head
}

// push enqueues ch unless it is already waiting.
func (q *chunkQueue) push(ch chunkCoord) {
	i := ch.Row*q.cols + ch.Col
	if q.queued[i] {
		return
	}
	q.queued[i] = true
	q.queue = append(q.queue, ch)
}

func (q *chunkQueue) pop() (chunkCoord, bool) {
	if q.head >= len(q.queue) {
		return chunkCoord{}, false
	}
	ch := q.queue[q.head]
	q.head++
	q.queued[ch.Row*q.cols+ch.Col] = false

	// Reclaim the consumed prefix once it dominates the backing array.
	if q.head > 64 && q.head*2 > len(q.queue) {
		n := copy(q.queue, q.queue[q.head:])
		q.queue = q.queue[:n]
		q.head = 0
	}
	return ch, true
}

// pushAllShuffled marks every chunk dirty in random order, so agents watching
// the field see it refresh in scattered patches instead of a scan line.
// Chunks already waiting keep their place.
func (q *chunkQueue) pushAllShuffled(rng *rand.Rand) {
	all := make([]chunkCoord, 0, q.rows*q.cols)
	for r := 0; r < q.rows; r++ {
		for c := 0; c < q.cols; c++ {
			all = append(all, chunkCoord{Row: r, Col: c})
		}
	}
	rng.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	for _, ch := range all {
		q.push(ch)
	}
}
