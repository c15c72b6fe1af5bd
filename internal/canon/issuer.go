package canon

import "strconv"

// issuer hands out sequential blank node identifiers and remembers the
// order it issued them in.
type issuer struct {
	prefix string
	next   int
	issued map[string]string
	order  []string
}

func newIssuer(prefix string) *issuer {
	return &issuer{prefix: prefix, issued: make(map[string]string)}
}

func (i *issuer) has(id string) bool {
	_, ok := i.issued[id]
	return ok
}

func (i *issuer) get(id string) string {
	return i.issued[id]
}

// issue returns the identifier for id, minting one if needed.
func (i *issuer) issue(id string) string {
	if v, ok := i.issued[id]; ok {
		return v
	}
	v := i.prefix + strconv.Itoa(i.next)
	i.next++
	i.issued[id] = v
	i.order = append(i.order, id)
	return v
}

func (i *issuer) clone() *issuer {
	c := &issuer{
		prefix: i.prefix,
		next:   i.next,
		issued: make(map[string]string, len(i.issued)),
		order:  append([]string(nil), i.order...),
	}
	for k, v := range i.issued {
		c.issued[k] = v
	}
	return c
}
