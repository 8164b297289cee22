package rangepart

type releasable interface {
	Release()
}

// scope acumula los intermedios de una llamada y los libera una sola vez,
// en orden inverso de creacion. Se usa con defer al inicio de cada llamada.
type scope struct {
	items []releasable
}

func (s *scope) add(r releasable) {
	s.items = append(s.items, r)
}

func (s *scope) release() {
	for i := len(s.items) - 1; i >= 0; i-- {
		s.items[i].Release()
	}
	s.items = nil
}
