package utils

import (
	"strconv"
	"strings"

	"github.com/bellcorp/eventboard/internal/domain/event"
)

func BuildEventsListCacheKey(f event.ListEventsFilter) string {
	s := ""
	if f.Search != nil {
		s = strings.ToLower(strings.TrimSpace(*f.Search))
	}
	c := ""
	if f.Category != nil {
		c = strings.ToLower(strings.TrimSpace(*f.Category))
	}
	l := ""
	if f.Location != nil {
		l = strings.ToLower(strings.TrimSpace(*f.Location))
	}
	d := ""
	if f.Date != nil {
		d = f.Date.UTC().Format("2006-01-02")
	}

	return "events:list:v1:page=" + strconv.Itoa(f.Page) +
		":size=" + strconv.Itoa(f.PageSize) +
		":search=" + s +
		":category=" + c +
		":location=" + l +
		":date=" + d
}
