package risk

// Frequency is a value and the number of times it was observed.
type Frequency struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// frequencyTable counts values and remembers the order they were first seen.
type frequencyTable struct {
	counts map[string]int
	order  []string
}

func newFrequencyTable() *frequencyTable {
	return &frequencyTable{counts: make(map[string]int)}
}

func (f *frequencyTable) add(value string, n int) {
	if _, seen := f.counts[value]; !seen {
		f.order = append(f.order, value)
	}
	f.counts[value] += n
}

// merge folds other into f. Values first seen in other keep their relative
// order and land after the values already present.
func (f *frequencyTable) merge(other *frequencyTable) {
	for _, v := range other.order {
		f.add(v, other.counts[v])
	}
}

// top returns the most frequent value; ties go to the value seen first.
func (f *frequencyTable) top() *Frequency {
	var best *Frequency
	for _, v := range f.order {
		if c := f.counts[v]; best == nil || c > best.Count {
			best = &Frequency{Value: v, Count: c}
		}
	}
	return best
}
