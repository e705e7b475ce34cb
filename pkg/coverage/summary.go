package coverage

// Counts is a hit/total pair over regions.
type Counts struct {
	Hit   int
	Total int
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Hit += o.Hit
	c.Total += o.Total
}

// Percent returns the hit ratio as a percentage. A zero total is reported
// as 100% since there is nothing left uncovered.
func (c Counts) Percent() float64 {
	if c.Total == 0 {
		return 100
	}
	return float64(c.Hit) / float64(c.Total) * 100
}

// Count tallies the regions of one kind.
func Count(regions []Region) Counts {
	c := Counts{Total: len(regions)}
	for _, r := range regions {
		if r.Count > 0 {
			c.Hit++
		}
	}
	return c
}

// ModuleSummary aggregates the counts of one module.
type ModuleSummary struct {
	Module string
	Path   string
	Kinds  map[Kind]Counts
	Total  Counts
}

// Summary is the aggregate over a whole payload.
type Summary struct {
	Modules []ModuleSummary
	Kinds   map[Kind]Counts
	Total   Counts
}

// Summarize computes per-module and overall counts. Modules are ordered by
// name.
func Summarize(p *Payload) Summary {
	s := Summary{Kinds: make(map[Kind]Counts)}
	for _, name := range p.ModuleNames() {
		regions := p.Modules[name]
		ms := ModuleSummary{
			Module: name,
			Path:   p.Paths[name],
			Kinds:  make(map[Kind]Counts, len(regions)),
		}
		for kind, list := range regions {
			c := Count(list)
			ms.Kinds[kind] = c
			ms.Total.Add(c)

			k := s.Kinds[kind]
			k.Add(c)
			s.Kinds[kind] = k
		}
		s.Total.Add(ms.Total)
		s.Modules = append(s.Modules, ms)
	}
	return s
}
