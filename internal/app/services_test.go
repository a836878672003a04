package app

import (
	"sort"
	"strings"
	"testing"

	types "github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

func TestEveryJobTypeHasAHandler(t *testing.T) {
	registry, err := wireHandlersRegistry(logger.Nop(), nil, nil, Repos{})
	if err != nil {
		t.Fatalf("wireHandlersRegistry: %v", err)
	}
	got := registry.Types()
	want := append([]string(nil), types.Types...)
	sort.Strings(got)
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("registered %v, want %v", got, want)
	}
}
