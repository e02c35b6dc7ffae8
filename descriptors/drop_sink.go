package descriptors

type retiredResource[T any] struct {
	resource         T
	remainingUpdates int
}

// DropSink defers destruction of resources that frames in flight may still reference. A retired
// resource is destroyed on the framesInFlight+1th call to Update after it was retired.
type DropSink[T any] struct {
	framesInFlight int
	destroy        func(T)
	retired        []retiredResource[T]
}

func NewDropSink[T any](framesInFlight int, destroy func(T)) *DropSink[T] {
	return &DropSink[T]{
		framesInFlight: framesInFlight,
		destroy:        destroy,
	}
}

func (s *DropSink[T]) Retire(resource T) {
	s.retired = append(s.retired, retiredResource[T]{
		resource:         resource,
		remainingUpdates: s.framesInFlight + 1,
	})
}

func (s *DropSink[T]) Update() {
	kept := s.retired[:0]
	for _, retired := range s.retired {
		retired.remainingUpdates--
		if retired.remainingUpdates > 0 {
			kept = append(kept, retired)
			continue
		}

		s.destroy(retired.resource)
	}

	for i := len(kept); i < len(s.retired); i++ {
		s.retired[i] = retiredResource[T]{}
	}
	s.retired = kept
}

func (s *DropSink[T]) Len() int {
	return len(s.retired)
}

// Destroy immediately destroys every retired resource. The device must be idle.
func (s *DropSink[T]) Destroy() {
	for _, retired := range s.retired {
		s.destroy(retired.resource)
	}
	s.retired = nil
}
