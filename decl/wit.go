package decl

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

// FromWIT builds a declaration from a WIT function signature. Parameters
// without a name are called p0, p1 and so on. Records and strings are
// passed by pointer to their Canonical ABI memory layout.
func FromWIT(name string, params []wit.Type, paramNames []string, results []wit.Type) (bind.Declaration, error) {
	d := bind.Declaration{Name: name}
	c := layout.NewWITConverter()

	for i, t := range params {
		pn := fmt.Sprintf("p%d", i)
		if i < len(paramNames) && paramNames[i] != "" {
			pn = paramNames[i]
		}
		l, err := c.Convert(t)
		if err != nil {
			return bind.Declaration{}, errors.New(errors.PhaseDecl, errors.KindUnsupported).
				Path(name, pn).
				Cause(err).
				Detail("parameter type").
				Build()
		}
		d.Params = append(d.Params, bind.Param{Name: pn, Layout: l})
	}

	switch len(results) {
	case 0:
	case 1:
		l, err := c.Convert(results[0])
		if err != nil {
			return bind.Declaration{}, errors.New(errors.PhaseDecl, errors.KindUnsupported).
				Path(name, "result").
				Cause(err).
				Detail("result type").
				Build()
		}
		d.Result = &l
	default:
		return bind.Declaration{}, errors.Unsupported(errors.PhaseDecl,
			fmt.Sprintf("%s: %d results, at most one supported", name, len(results)))
	}
	return d, nil
}
