package tts

import (
	"context"
	"sort"
	"testing"

	"github.com/dgnsrekt/ttsproxy/internal/ttypes"
)

func TestDuckController_DuckAndRestore(t *testing.T) {
	out := newFakeOutput()
	out.setState("media_player.kitchen", ttypes.PlaybackPlaying, floatPtr(0.6))
	out.setState("media_player.office", ttypes.PlaybackBuffering, floatPtr(0.3))
	out.setState("media_player.garage", ttypes.PlaybackIdle, floatPtr(0.9))
	out.setState("media_player.living", ttypes.PlaybackPlaying, floatPtr(0.5))

	d := NewDuckController(out, discardLogger())
	ctx := context.Background()

	targets := []string{"media_player.kitchen", "media_player.office", "media_player.garage", "media_player.living"}
	if n := d.Duck(ctx, targets, "media_player.living", 0.1); n != 2 {
		t.Fatalf("Expected 2 ducked, got %d", n)
	}

	ducked := d.Ducked()
	sort.Strings(ducked)
	if len(ducked) != 2 || ducked[0] != "media_player.kitchen" || ducked[1] != "media_player.office" {
		t.Errorf("Unexpected ducked targets: %v", ducked)
	}

	if v, _ := out.volume("media_player.living"); v != 0.5 {
		t.Errorf("Announcement target must not be ducked, got %v", v)
	}
	if v, _ := out.volume("media_player.garage"); v != 0.9 {
		t.Errorf("Idle target must not be ducked, got %v", v)
	}

	if n := d.Restore(ctx); n != 2 {
		t.Errorf("Expected 2 restored, got %d", n)
	}
	if v, _ := out.volume("media_player.kitchen"); v != 0.6 {
		t.Errorf("Expected kitchen at 0.6, got %v", v)
	}
	if v, _ := out.volume("media_player.office"); v != 0.3 {
		t.Errorf("Expected office at 0.3, got %v", v)
	}
	if d.Active() {
		t.Error("Expected no active ducking after restore")
	}
}

func TestDuckController_RestoreIsIdempotent(t *testing.T) {
	out := newFakeOutput()
	d := NewDuckController(out, discardLogger())
	ctx := context.Background()

	if n := d.Restore(ctx); n != 0 {
		t.Errorf("Expected no-op restore, got %d", n)
	}

	out.setState("media_player.kitchen", ttypes.PlaybackPlaying, floatPtr(0.6))
	d.Duck(ctx, []string{"media_player.kitchen"}, "", 0.1)
	d.Restore(ctx)
	before := len(out.callsFor("set_volume"))

	if n := d.Restore(ctx); n != 0 {
		t.Errorf("Expected second restore to do nothing, got %d", n)
	}
	if after := len(out.callsFor("set_volume")); after != before {
		t.Errorf("Second restore issued %d volume calls", after-before)
	}
}

func TestDuckController_KeepsFirstRecordedVolume(t *testing.T) {
	out := newFakeOutput()
	out.setState("media_player.kitchen", ttypes.PlaybackPlaying, floatPtr(0.6))
	d := NewDuckController(out, discardLogger())
	ctx := context.Background()

	d.Duck(ctx, []string{"media_player.kitchen"}, "", 0.1)
	// Second duck would otherwise record the already lowered 0.1.
	d.Duck(ctx, []string{"media_player.kitchen"}, "", 0.1)
	d.Restore(ctx)

	if v, _ := out.volume("media_player.kitchen"); v != 0.6 {
		t.Errorf("Expected original 0.6 restored, got %v", v)
	}
}

func TestDuckController_UnknownVolumeLeftAlone(t *testing.T) {
	out := newFakeOutput()
	out.setState("media_player.radio", ttypes.PlaybackPlaying, nil)
	d := NewDuckController(out, discardLogger())
	ctx := context.Background()

	if n := d.Duck(ctx, []string{"media_player.radio"}, "", 0.2); n != 1 {
		t.Fatalf("Expected radio ducked, got %d", n)
	}
	if n := d.Restore(ctx); n != 0 {
		t.Errorf("Expected unknown volume to be skipped, got %d restored", n)
	}
	if v, _ := out.volume("media_player.radio"); v != 0.2 {
		t.Errorf("Expected radio left at 0.2, got %v", v)
	}
}

func TestDuckController_FailuresDoNotBlockOthers(t *testing.T) {
	out := newFakeOutput()
	out.setState("media_player.a", ttypes.PlaybackPlaying, floatPtr(0.5))
	out.setState("media_player.b", ttypes.PlaybackPlaying, floatPtr(0.5))
	out.setState("media_player.c", ttypes.PlaybackPlaying, floatPtr(0.5))
	out.readErr["media_player.a"] = errFake
	out.setVolumeErr["media_player.b"] = errFake

	d := NewDuckController(out, discardLogger())
	ctx := context.Background()

	if n := d.Duck(ctx, []string{"media_player.a", "media_player.b", "media_player.c"}, "", 0.1); n != 1 {
		t.Fatalf("Expected only c ducked, got %d", n)
	}
	if v, _ := out.volume("media_player.c"); v != 0.1 {
		t.Errorf("Expected c at 0.1, got %v", v)
	}

	// A failing restore still forgets the record.
	out.setVolumeErr["media_player.c"] = errFake
	if n := d.Restore(ctx); n != 0 {
		t.Errorf("Expected failed restore, got %d", n)
	}
	if d.Active() {
		t.Error("Expected record cleared even when restore fails")
	}
}
