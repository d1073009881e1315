package core

// parseProbes are the object paths searched for clip lists, in order
var parseProbes = [][]string{
	{"clips"},
	{"result"},
	{"data", "clips"},
	{"project", "clips"},
	{"response", "clips"},
}

// Parse extracts clip candidates from a decoded API response body.
// Array bodies are treated as clip lists directly. Object bodies are
// probed for known list locations in order, the first non-empty list
// winning. An object that carries its own id and audio URL is treated
// as a single clip entity.
func Parse(body any) []Candidate {
	switch v := body.(type) {
	case []any:
		return toCandidates(v)
	case map[string]any:
		for _, path := range parseProbes {
			if list := listAt(v, path); len(list) > 0 {
				return list
			}
		}
		if _, ok := v["id"]; ok {
			if _, ok := v["audio_url"]; ok {
				return []Candidate{Candidate(v)}
			}
		}
	}
	return nil
}

// listAt walks path through nested objects and converts the value found
// there, if it is an array, into candidates.
func listAt(m map[string]any, path []string) []Candidate {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	list, ok := cur.([]any)
	if !ok {
		return nil
	}
	return toCandidates(list)
}

func toCandidates(list []any) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Candidate(m))
		}
	}
	return out
}
