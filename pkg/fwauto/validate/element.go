package validate

import (
	"strings"

	"github.com/beevik/etree"

	"github.com/fwauto/fwauto/pkg/fwauto/device"
)

// ValidateElement checks a serialized <entry> body right before it is sent:
// it must be well-formed XML with a named <entry> root carrying the
// sub-elements the object type requires.
func (p *Pipeline) ValidateElement(objectType, body string) Result {
	res := newResult()

	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		res.errorf("element is not well-formed XML: %v", err)
		return res
	}
	root := doc.Root()
	if root == nil {
		res.errorf("element is empty")
		return res
	}
	if root.Tag != "entry" {
		res.errorf("root element is <%s>, want <entry>", root.Tag)
		return res
	}
	if strings.TrimSpace(root.SelectAttrValue("name", "")) == "" {
		res.errorf("<entry> has no name attribute")
	}

	t, err := device.LookupType(objectType)
	if err != nil {
		res.warnf("no structural rules for object type %q", objectType)
		return res
	}
	for _, group := range t.Required {
		found := false
		for _, tag := range group {
			if root.SelectElement(tag) != nil {
				found = true
				break
			}
		}
		if !found {
			if len(group) == 1 {
				res.errorf("<entry> is missing <%s>", group[0])
			} else {
				res.errorf("<entry> is missing one of <%s>", strings.Join(group, ">, <"))
			}
		}
	}
	return res
}
