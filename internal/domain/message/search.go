package message

import "strings"

// SearchWeight is a postgres full-text weight class, A being the most relevant.
type SearchWeight string

const (
	WeightA SearchWeight = "A"
	WeightB SearchWeight = "B"
	WeightC SearchWeight = "C"
	WeightD SearchWeight = "D"
)

// SearchPart is one weighted chunk of a message's searchable representation.
type SearchPart struct {
	Weight SearchWeight
	Text   string
}

// SearchParts derives the weighted searchable representation of m:
// recipient identity > subject and tags > attachment names > body.
// It must be recomputed whenever any of those fields change.
func (m *Message) SearchParts() []SearchPart {
	identity := strings.Join(nonEmpty(m.ToFirstName, m.ToLastName, m.ToAddress, m.ExternalID), " ")
	subject := strings.Join(nonEmpty(append([]string{m.Subject}, m.Tags...)...), " ")

	names := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		names = append(names, AttachmentName(a))
	}

	return []SearchPart{
		{Weight: WeightA, Text: identity},
		{Weight: WeightB, Text: subject},
		{Weight: WeightC, Text: strings.Join(nonEmpty(names...), " ")},
		{Weight: WeightD, Text: m.Body},
	}
}

// AttachmentRef formats a stored attachment reference as "id::name".
func AttachmentRef(id, name string) string {
	return id + "::" + name
}

// AttachmentName extracts the display name from an "id::name" reference.
func AttachmentName(ref string) string {
	if _, name, ok := strings.Cut(ref, "::"); ok {
		return name
	}
	return ref
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
