package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/respack/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{
		Enabled:              false,
		ServerAddress:        "",
		ProfileMutexFraction: 999,
	})
	if err != nil {
		t.Fatalf("disabled should never error, got: %v", err)
	}
	stop()
	stop()
}

func TestStart_Enabled_RequiresServerAddress(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())
	stop, err := Start(ctx, Options{Enabled: true, AppName: "respack"})
	if err == nil {
		t.Fatal("expected error for empty server address")
	}
	if !strings.Contains(err.Error(), "server address") {
		t.Fatalf("err = %v", err)
	}
	if stop == nil {
		t.Fatal("stop must be callable even on error")
	}
	stop()
}
