package jexl

// AnalyzeTransformSubjects statically collects the literal subjects piped into any of
// the named transforms. String literals and the string elements of array literals
// count; computed subjects are ignored.
func AnalyzeTransformSubjects(expression string, names ...string) (map[string]struct{}, error) {
	tree, err := Parse(expression)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	subjects := map[string]struct{}{}

	Walk(tree, func(node Node) {
		transform, ok := node.(*Pipe)
		if !ok {
			return
		}

		if _, ok := wanted[transform.Name]; !ok {
			return
		}

		switch subject := transform.Subject.(type) {
		case *Literal:
			if s, ok := subject.Value.(string); ok {
				subjects[s] = struct{}{}
			}
		case *ArrayLiteral:
			for _, el := range subject.Elements {
				if lit, ok := el.(*Literal); ok {
					if s, ok := lit.Value.(string); ok {
						subjects[s] = struct{}{}
					}
				}
			}
		}
	})

	return subjects, nil
}
