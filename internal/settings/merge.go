package settings

const (
	keyAIServices  = "aiServices"
	inheritedFrom  = "SuperAdmin"
	flagInherited  = "isInherited"
	fieldInherited = "inheritedFrom"
)

// Overlay merges layers left to right. Later layers replace top-level keys of
// earlier ones wholesale; nested objects are not merged. Nil layers are skipped.
func Overlay(layers ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// mergeAIServices concatenates the global and personal aiServices lists, tagging
// where each entry came from. ok is false when neither document has the key.
func mergeAIServices(global, personal map[string]any) ([]any, bool) {
	g, gok := global[keyAIServices]
	p, pok := personal[keyAIServices]
	if !gok && !pok {
		return nil, false
	}

	out := []any{}
	for _, entry := range asList(g) {
		out = append(out, tag(entry, true))
	}
	for _, entry := range asList(p) {
		out = append(out, tag(entry, false))
	}
	return out, true
}

func asList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []map[string]any:
		out := make([]any, 0, len(list))
		for _, m := range list {
			out = append(out, m)
		}
		return out
	}
	return nil
}

// tag copies an object entry and marks its origin. Non-object entries pass through.
func tag(entry any, inherited bool) any {
	m, ok := entry.(map[string]any)
	if !ok {
		return entry
	}
	cp := make(map[string]any, len(m)+2)
	for k, v := range m {
		cp[k] = v
	}
	cp[flagInherited] = inherited
	if inherited {
		cp[fieldInherited] = inheritedFrom
	} else {
		delete(cp, fieldInherited)
	}
	return cp
}
