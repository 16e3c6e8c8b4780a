package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Marshal serializes the entries of t as XML without a wrapper element for t
// itself. Leaf values are written as CDATA sections and carry no type
// annotations. A value containing "]]>" is split over adjacent sections.
//
//	root := entity.NewTemplate("")
//	root.Set("TEMPLATE", map[string]any{"LABELS": "SSD"})
//	s, _ := entity.Marshal(root) // <TEMPLATE><LABELS><![CDATA[SSD]]></LABELS></TEMPLATE>
func Marshal(t *Template) (string, error) {
	if t == nil {
		return "", errors.New("entity: cannot marshal nil template")
	}
	doc := etree.NewDocument()
	if err := appendEntries(&doc.Element, t); err != nil {
		return "", err
	}
	return doc.WriteToString()
}

func appendEntries(parent *etree.Element, t *Template) error {
	var err error
	t.Each(func(key string, value any) {
		if err == nil {
			err = appendValue(parent, key, value)
		}
	})
	return err
}

func appendValue(parent *etree.Element, key string, value any) error {
	if key == "" {
		return errors.New("entity: empty element name")
	}
	v, err := Normalize(key, value)
	if err != nil {
		return err
	}

	switch tv := v.(type) {
	case *Template:
		return appendEntries(parent.CreateElement(key), tv)
	case []any:
		for _, item := range tv {
			if err := appendValue(parent, key, item); err != nil {
				return fmt.Errorf("entity: %s: %w", key, err)
			}
		}
		return nil
	default:
		el := parent.CreateElement(key)
		if text := FormatScalar(tv); text != "" {
			appendCData(el, text)
		}
		return nil
	}
}

func appendCData(el *etree.Element, text string) {
	parts := strings.Split(text, "]]>")
	for i, part := range parts {
		if i > 0 {
			part = ">" + part
		}
		if i < len(parts)-1 {
			part += "]]"
		}
		el.CreateCData(part)
	}
}
