package loop

// Tee fans every output out to each sink in order. Nil sinks are skipped.
func Tee(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(out Output) {
		for _, s := range live {
			s.Emit(out)
		}
	})
}
