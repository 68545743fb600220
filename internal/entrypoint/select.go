package entrypoint

import "fmt"

// AmbiguousError is returned by Select when no name was requested, no
// "__main__" record exists, and the number of selectable candidates is not
// exactly one (none, or more than one).
type AmbiguousError struct {
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("entry point ambiguous: candidates %v, pass an explicit name", e.Candidates)
}

// NotFoundError is returned by Select when a requested name matches no
// scanned record.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entry point not found: %q", e.Name)
}

// Select applies the harness's entry-point selection rule to a ranked
// list of records:
//  1. a requested name, if it matches a record, wins outright;
//  2. else the "__main__" record, if present, wins;
//  3. else, if exactly one selectable record remains, it wins;
//  4. otherwise selection is ambiguous.
//
// Top-level-call records are never selectable (per the scanner's
// recommendation that a nominated identifier may not be callable at all);
// neither are ineligible functions (functions that take parameters but
// aren't a main-like name). Both still appear in the scan output for
// inspection.
func Select(points []EntryPoint, requestedName string) (EntryPoint, error) {
	selectable := make([]EntryPoint, 0, len(points))
	for _, p := range points {
		if p.Kind == KindTopLevelCall || p.Kind == KindIneligibleFunction {
			continue
		}
		selectable = append(selectable, p)
	}

	if requestedName != "" {
		for _, p := range selectable {
			if p.Name == requestedName {
				return p, nil
			}
		}
		return EntryPoint{}, &NotFoundError{Name: requestedName}
	}

	for _, p := range selectable {
		if p.Name == "__main__" {
			return p, nil
		}
	}

	if len(selectable) == 1 {
		return selectable[0], nil
	}

	names := make([]string, len(selectable))
	for i, p := range selectable {
		names[i] = p.Name
	}
	return EntryPoint{}, &AmbiguousError{Candidates: names}
}
