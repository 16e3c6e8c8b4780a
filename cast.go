package one

import (
	"fmt"
	"strings"

	oaerrors "github.com/go-openapi/errors"

	"github.com/privaz/one-go/entity"
)

// Rooted is implemented by values that know their own update form, such as
// a template read from a previous response.
type Rooted interface {
	Root() *entity.Template
}

// Cast converts a call parameter into the form the server expects.
//
// Scalars and other non-mapping values are returned unchanged. Mappings
// (Go maps with string keys, or anything implementing [Rooted]) are turned
// into text:
//
//   - when the first value is itself a mapping the structure is serialized as
//     XML with no outer wrapper:
//     {"TEMPLATE": {"LABELS": "SSD"}} -> <TEMPLATE><LABELS><![CDATA[SSD]]></LABELS></TEMPLATE>
//   - otherwise it becomes an attribute vector, one KEY = "VALUE" line per
//     entry: {"LABELS": "SSD"} -> LABELS = "SSD"\n
//
// Go map keys are sorted, so the output never depends on map iteration
// order. Templates keep their own order. An empty mapping is an error.
//
// For a Go map that mixes scalars and mappings, the form is chosen by the
// value under the alphabetically first key: {"DISK": {...}, "NAME": "vm"}
// is serialized as markup, {"CPU": "1", "DISK": {...}} as an attribute
// vector. Use a [entity.Template] to control the order.
func Cast(param any) (any, error) {
	var t *entity.Template
	switch p := param.(type) {
	case *entity.Template:
		if p == nil {
			return nil, newError(KindMarshal, "cannot cast nil template", 0, nil)
		}
		t = p.Root()
	case Rooted:
		t = p.Root()
		if t == nil {
			return nil, newError(KindMarshal, "cannot cast nil template", 0, nil)
		}
	default:
		if !entity.IsMapping(param) {
			return param, nil
		}
		var err error
		t, err = entity.FromMap("", param)
		if err != nil {
			return nil, newError(KindMarshal, err.Error(), 0,
				oaerrors.InvalidType("param", "call", "map[string]any", param))
		}
	}
	return castTemplate(t)
}

func castTemplate(t *entity.Template) (string, error) {
	keys := t.Keys()
	if len(keys) == 0 {
		return "", newError(KindMarshal, "cannot cast empty structure", 0,
			oaerrors.Required("param", "call", nil))
	}

	first, _ := t.Get(keys[0])
	if entity.IsMapping(first) {
		s, err := entity.Marshal(t)
		if err != nil {
			return "", newError(KindMarshal, "cannot serialize structure", 0, err)
		}
		return s, nil
	}
	return attributeVector(t)
}

// attributeVector renders t as KEY = "VALUE" lines. Nested mappings become
// vector attributes: DISK = [ IMAGE_ID = "3", SIZE = "1024" ].
func attributeVector(t *entity.Template) (string, error) {
	var b strings.Builder
	var err error
	t.Each(func(key string, value any) {
		if err != nil {
			return
		}
		err = writeAttribute(&b, key, value)
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeAttribute(b *strings.Builder, key string, value any) error {
	v, err := entity.Normalize(key, value)
	if err != nil {
		return newError(KindMarshal, err.Error(), 0, nil)
	}

	switch tv := v.(type) {
	case []any:
		for _, item := range tv {
			if err := writeAttribute(b, key, item); err != nil {
				return err
			}
		}
		return nil
	case *entity.Template:
		parts := make([]string, 0, tv.Len())
		var nestedErr error
		tv.Each(func(k string, nv any) {
			if entity.IsMapping(nv) {
				nestedErr = newError(KindMarshal,
					fmt.Sprintf("vector attribute %s: nested structure under %s", key, k), 0, nil)
				return
			}
			parts = append(parts, fmt.Sprintf("%s = %s", k, quote(entity.FormatScalar(nv))))
		})
		if nestedErr != nil {
			return nestedErr
		}
		fmt.Fprintf(b, "%s = [ %s ]\n", key, strings.Join(parts, ", "))
		return nil
	default:
		fmt.Fprintf(b, "%s = %s\n", key, quote(entity.FormatScalar(tv)))
		return nil
	}
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}
