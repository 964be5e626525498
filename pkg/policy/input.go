package policy

import (
	"github.com/infraguard/infraguard/pkg/tfconfig"
	"github.com/infraguard/infraguard/pkg/tfrunner"
	"github.com/zclconf/go-cty/cty"
)

// Payload renders the input as plain maps and slices for the custom rule
// runtimes. Rego sees it as `input`, Starlark as the `check` argument. The
// shape is part of the custom-rule contract and must stay stable.
func (in *Input) Payload() map[string]interface{} {
	docs := make([]interface{}, 0, len(in.Set.Documents))
	for _, d := range in.Set.Documents {
		docs = append(docs, documentPayload(d))
	}

	payload := map[string]interface{}{
		"dir":       in.Set.Dir,
		"documents": docs,
	}
	if in.Checks != nil {
		checks := map[string]interface{}{}
		if in.Checks.Syntax != nil {
			checks["syntax"] = execPayload(in.Checks.Syntax)
		}
		if in.Checks.Format != nil {
			checks["format"] = execPayload(in.Checks.Format)
		}
		payload["checks"] = checks
	}
	return payload
}

func documentPayload(d *tfconfig.Document) map[string]interface{} {
	blocks := make([]interface{}, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		blocks = append(blocks, blockPayload(b))
	}
	return map[string]interface{}{
		"name":        d.Name,
		"path":        d.Path,
		"parsed":      d.Parsed(),
		"diagnostics": stringsPayload(d.Diagnostics),
		"blocks":      blocks,
	}
}

func blockPayload(b *tfconfig.Block) map[string]interface{} {
	attrs := make(map[string]interface{}, len(b.Attributes))
	for name, a := range b.Attributes {
		attr := map[string]interface{}{
			"raw":       a.RawText,
			"reference": a.Reference,
		}
		if a.Reference {
			attr["reference_root"] = a.ReferenceRoot
		}
		if v, ok := ctyToGo(a.Value); ok {
			attr["value"] = v
		}
		attrs[name] = attr
	}

	nested := make([]interface{}, 0, len(b.Blocks))
	for _, nb := range b.Blocks {
		nested = append(nested, blockPayload(nb))
	}

	return map[string]interface{}{
		"type":       b.Type,
		"labels":     stringsPayload(b.Labels),
		"address":    b.Address(),
		"attributes": attrs,
		"blocks":     nested,
	}
}

func execPayload(res *tfrunner.ExecResult) map[string]interface{} {
	return map[string]interface{}{
		"exit_code": res.ExitCode,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
		"timed_out": res.TimedOut,
	}
}

func stringsPayload(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// ctyToGo converts statically known literal values to plain Go values.
// Unknown or unsupported values are omitted from the payload.
func ctyToGo(v cty.Value) (interface{}, bool) {
	if v == cty.NilVal || !v.IsKnown() || v.IsNull() {
		return nil, false
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), true
	case t == cty.Bool:
		return v.True(), true
	case t == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, true
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		var list []interface{}
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, ok := ctyToGo(ev)
			if !ok {
				return nil, false
			}
			list = append(list, gv)
		}
		if list == nil {
			list = []interface{}{}
		}
		return list, true
	case t.IsObjectType() || t.IsMapType():
		obj := make(map[string]interface{})
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			if k.Type() != cty.String {
				return nil, false
			}
			gv, ok := ctyToGo(ev)
			if !ok {
				return nil, false
			}
			obj[k.AsString()] = gv
		}
		return obj, true
	default:
		return nil, false
	}
}
