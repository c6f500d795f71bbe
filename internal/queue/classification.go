package queue

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"clinic-queue/internal/apperr"
)

// Class - a triage classification and the ticket prefix and rank it maps to.
// Lower rank is served first.
type Class struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
	Rank   int    `json:"rank"`
}

// DefaultClasses - the classifications every clinic starts with.
var DefaultClasses = []Class{
	{Name: "Urgent", Prefix: "E", Rank: 1},
	{Name: "Preferential", Prefix: "P", Rank: 2},
	{Name: "Normal", Prefix: "N", Rank: 3},
	{Name: "Other", Prefix: "O", Rank: 4},
}

// Classifier resolves classification names (case-insensitive) to their
// prefix and rank. It is immutable once built.
type Classifier struct {
	byName map[string]Class
	order  []Class
}

// NewClassifier builds a classifier from the defaults plus extra. An extra
// class with the name of a default replaces it. Each prefix may belong to
// one class only, since tickets of a prefix share one printed sequence.
func NewClassifier(extra ...Class) (*Classifier, error) {
	c := &Classifier{byName: map[string]Class{}}
	for _, cl := range append(append([]Class{}, DefaultClasses...), extra...) {
		if err := c.add(cl); err != nil {
			return nil, err
		}
	}

	owner := map[string]string{}
	for _, cl := range c.byName {
		if other, taken := owner[cl.Prefix]; taken {
			a, b := other, cl.Name
			if b < a {
				a, b = b, a
			}
			return nil, fmt.Errorf("classifications %q and %q share prefix %q", a, b, cl.Prefix)
		}
		owner[cl.Prefix] = cl.Name
		c.order = append(c.order, cl)
	}
	sort.Slice(c.order, func(i, j int) bool {
		if c.order[i].Rank != c.order[j].Rank {
			return c.order[i].Rank < c.order[j].Rank
		}
		return c.order[i].Name < c.order[j].Name
	})
	return c, nil
}

func (c *Classifier) add(cl Class) error {
	cl.Name = strings.TrimSpace(cl.Name)
	cl.Prefix = strings.ToUpper(strings.TrimSpace(cl.Prefix))
	if cl.Name == "" || cl.Prefix == "" {
		return fmt.Errorf("classification needs a name and a prefix: %+v", cl)
	}
	c.byName[strings.ToLower(cl.Name)] = cl
	return nil
}

// Lookup returns the class called name. Unknown names are a validation
// error.
func (c *Classifier) Lookup(name string) (Class, error) {
	cl, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Class{}, apperr.Validation("unknown classification %q", name)
	}
	return cl, nil
}

// Rank - priority rank of a classification; see Lookup.
func (c *Classifier) Rank(name string) (int, error) {
	cl, err := c.Lookup(name)
	return cl.Rank, err
}

// Classes lists the registry in rank order.
func (c *Classifier) Classes() []Class {
	return append([]Class(nil), c.order...)
}

// Ticket formats a ticket code, e.g. N-001.
func (cl Class) Ticket(number int64) string {
	return fmt.Sprintf("%s-%03d", cl.Prefix, number)
}

// ParseClasses reads operator-defined classes written as
// "Name:Prefix:Rank;Name:Prefix:Rank".
func ParseClasses(raw string) ([]Class, error) {
	var out []Class
	for _, item := range strings.Split(raw, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("classification %q: want Name:Prefix:Rank", item)
		}
		rank, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("classification %q: bad rank: %w", item, err)
		}
		out = append(out, Class{Name: parts[0], Prefix: parts[1], Rank: rank})
	}
	return out, nil
}
