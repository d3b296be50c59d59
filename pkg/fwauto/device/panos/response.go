package panos

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/fwauto/fwauto/pkg/util"
)

// Response is a parsed <response> envelope with status="success".
type Response struct {
	Status string
	Code   string
	Result *etree.Element
	Raw    []byte

	// Message is the informational <msg> of a successful response, e.g.
	// "There are no changes to commit."
	Message string
}

// ParseResponse parses an API response body. An envelope with
// status="error" yields *util.APIError carrying the device message.
func ParseResponse(body []byte) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, util.NewAPIError("", fmt.Sprintf("malformed response: %v", err))
	}
	root := doc.SelectElement("response")
	if root == nil {
		return nil, util.NewAPIError("", "response envelope missing")
	}

	resp := &Response{
		Status: root.SelectAttrValue("status", ""),
		Code:   root.SelectAttrValue("code", ""),
		Result: root.SelectElement("result"),
		Raw:    body,
	}
	if resp.Status != "success" {
		return nil, util.NewAPIError(resp.Code, errorMessage(root))
	}
	if msg := findMsg(root); msg != nil {
		resp.Message = lines(msg)
	}
	return resp, nil
}

// errorMessage collects <msg> text, <msg><line> children or
// <result><msg> in that order of preference.
func errorMessage(root *etree.Element) string {
	msg := findMsg(root)
	if msg == nil {
		return "request failed"
	}
	if text := lines(msg); text != "" {
		return text
	}
	return "request failed"
}

func findMsg(root *etree.Element) *etree.Element {
	if msg := root.SelectElement("msg"); msg != nil {
		return msg
	}
	if result := root.SelectElement("result"); result != nil {
		return result.SelectElement("msg")
	}
	return nil
}

// lines joins the <line> children of el, or returns its own text.
func lines(el *etree.Element) string {
	var parts []string
	for _, line := range el.FindElements(".//line") {
		if t := strings.TrimSpace(line.Text()); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "; ")
	}
	return strings.TrimSpace(el.Text())
}

// Empty reports whether the result carries no elements. A config get on a
// path that does not exist returns an empty result.
func (r *Response) Empty() bool {
	return r.Result == nil || len(r.Result.ChildElements()) == 0
}

// Entry returns the first <entry> in the result, or nil.
func (r *Response) Entry() *etree.Element {
	if r.Result == nil {
		return nil
	}
	return r.Result.FindElement(".//entry")
}

// Entries returns the <entry> elements of a listing. The result may hold
// them directly or inside a single container element.
func (r *Response) Entries() []*etree.Element {
	if r.Result == nil {
		return nil
	}
	if direct := r.Result.SelectElements("entry"); len(direct) > 0 {
		return direct
	}
	children := r.Result.ChildElements()
	if len(children) == 1 {
		return children[0].SelectElements("entry")
	}
	return nil
}

// Text returns the trimmed text of the element at path below the result.
func (r *Response) Text(path string) string {
	if r.Result == nil {
		return ""
	}
	el := r.Result.FindElement(path)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// Lines joins the <line> children (or the text) of the element at path
// below the result with "; ".
func (r *Response) Lines(path string) string {
	if r.Result == nil {
		return ""
	}
	el := r.Result.FindElement(path)
	if el == nil {
		return ""
	}
	return lines(el)
}
