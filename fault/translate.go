package fault

import "errors"

// Translate maps a failure observed while awaiting a peer operation onto the
// caller-facing taxonomy:
//
//  1. an interrupted wait stays KindInterrupted;
//  2. on the XA path, an error that already carries an XA code is returned
//     unchanged;
//  3. anything else is wrapped as fallback (KindXA with CodeGeneric, or
//     KindSystem), keeping the original cause. The begin path always yields
//     KindSystem; a code in the cause chain stays reachable through CodeOf.
func Translate(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInterrupted) {
		var f *Fault
		if errors.As(err, &f) && f.Kind == KindInterrupted {
			if f.Op == "" {
				clone := *f
				clone.Op = op
				return &clone
			}
			return f
		}
		return Interrupted(op, err)
	}
	if _, ok := CodeOf(err); ok && fallback == KindXA {
		return err
	}
	switch fallback {
	case KindXA:
		return XA(op, CodeGeneric, err)
	case KindSystem:
		return System(op, err)
	default:
		return &Fault{Kind: fallback, Op: op, Cause: err}
	}
}
