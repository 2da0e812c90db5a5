package block

// FlushPolicy decides whether the block under construction should be closed
// before the given entry is added to it.
type FlushPolicy interface {
	ShouldCut(key, value []byte) bool
}

// PolicyFactory binds a policy to the builder whose size it watches.
type PolicyFactory func(b *Builder) FlushPolicy

// SizePolicy cuts once the block reaches blockSize bytes, or earlier when the
// next entry would overflow it and the block is already within deviation
// percent of the target.
func SizePolicy(blockSize, deviation int) PolicyFactory {
	limit := (blockSize*(100-deviation) + 99) / 100
	return func(b *Builder) FlushPolicy {
		return &sizePolicy{b: b, blockSize: blockSize, deviation: deviation, limit: limit}
	}
}

type sizePolicy struct {
	b         *Builder
	blockSize int
	deviation int
	limit     int
}

func (p *sizePolicy) ShouldCut(key, value []byte) bool {
	if p.b.Empty() {
		return false
	}
	cur := p.b.CurrentSize()
	return cur >= p.blockSize || p.almostFull(cur, key, value)
}

func (p *sizePolicy) almostFull(cur int, key, value []byte) bool {
	if p.deviation <= 0 {
		return false
	}
	return p.b.EstimatedSizeAfter(key, value) > p.blockSize && cur > p.limit
}

// FixedCostPolicy charges every entry perEntry bytes against limit regardless
// of its real size, which makes node fanout exactly limit/perEntry.
func FixedCostPolicy(perEntry, limit int) PolicyFactory {
	return func(b *Builder) FlushPolicy {
		return &fixedCostPolicy{b: b, perEntry: perEntry, limit: limit}
	}
}

type fixedCostPolicy struct {
	b        *Builder
	perEntry int
	limit    int
}

func (p *fixedCostPolicy) ShouldCut(_, _ []byte) bool {
	return !p.b.Empty() && (p.b.Count()+1)*p.perEntry > p.limit
}
