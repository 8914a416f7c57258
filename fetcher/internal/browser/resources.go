package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockAliases maps the plural config names to CDP resource types.
var blockAliases = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
}

// blockList is the set of resource types a session refuses to load.
type blockList map[proto.NetworkResourceType]bool

// newBlockList accepts plural aliases ("images") as well as raw CDP type
// names ("XHR", "Ping"), case-insensitively.
func newBlockList(names []string) blockList {
	bl := make(blockList, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if t, ok := blockAliases[n]; ok {
			bl[t] = true
			continue
		}
		bl[proto.NetworkResourceType(n)] = true
	}
	return bl
}

func (bl blockList) blocks(t proto.NetworkResourceType) bool {
	return bl[proto.NetworkResourceType(strings.ToLower(string(t)))] || bl[t]
}

// interceptResources hijacks every request of page and fails the ones whose
// type is in names. The caller stops the returned router when the session ends.
func interceptResources(page *rod.Page, names []string) (*rod.HijackRouter, error) {
	bl := newBlockList(names)
	router := page.HijackRequests()
	if err := router.Add("*", "", func(h *rod.Hijack) {
		if bl.blocks(h.Request.Type()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	}); err != nil {
		return nil, err
	}
	go router.Run()
	return router, nil
}
