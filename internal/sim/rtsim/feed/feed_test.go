package feed

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim/data"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func death(victim, killer string, pos mathx.Vec3) Event {
	return Event{Kind: KindDeath, Victim: victim, Killer: killer, Pos: [3]float64{pos.X, pos.Y, pos.Z}}
}

func TestEvent_Report(t *testing.T) {
	rep, err := death("npc:4", "char:9", mathx.Vec3{}).Report(100)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Kind != data.ReportDeath || rep.Actor != data.NpcActor(4) || rep.Killer == nil || *rep.Killer != data.CharacterActor(9) || rep.AtTOD != 100 {
		t.Fatalf("rep=%+v", rep)
	}

	site := uint64(3)
	rep, err = Event{Kind: KindTheft, Thief: "char:2", Site: &site, Sprite: "plant:wheat"}.Report(5)
	if err != nil || rep.Kind != data.ReportTheft || rep.Site == nil || *rep.Site != 3 {
		t.Fatalf("theft rep=%+v err=%v", rep, err)
	}

	for _, bad := range []Event{{Kind: "flood"}, {Kind: KindDeath, Victim: "x"}, {Kind: KindDeath, Victim: "npc:1", Killer: "?"}} {
		if _, err := bad.Report(0); err == nil {
			t.Fatalf("accepted %+v", bad)
		}
	}
}

func TestIngest_DeliversToNearbyNpcs(t *testing.T) {
	d := data.New()
	near := data.NewNpc(1, mathx.V3(5, 0, 0), data.BodyHumanoid, data.Role{Kind: data.RoleWild})
	far := data.NewNpc(2, mathx.V3(200, 0, 0), data.BodyHumanoid, data.Role{Kind: data.RoleWild})
	d.CreateNpc(near)
	d.CreateNpc(far)
	d.TimeOfDay = 42
	d.RebuildGrid()

	res := Ingest(d, []Event{death("npc:9", "", mathx.Vec3{}), {Kind: "bogus"}}, 32)
	if len(res.Reports) != 1 || res.Delivered != 1 || res.Rejected != 1 {
		t.Fatalf("res=%+v", res)
	}
	if near.Inbox.Len() != 1 || near.Inbox.Items()[0].Report != res.Reports[0] {
		t.Fatalf("near inbox=%+v", near.Inbox.Items())
	}
	if far.Inbox.Len() != 0 {
		t.Fatalf("far npc was told")
	}
	rep, _ := d.Reports.Get(res.Reports[0])
	if rep.AtTOD != 42 {
		t.Fatalf("report time=%v", rep.AtTOD)
	}
}

func TestMemorySource_PollDrains(t *testing.T) {
	m := NewMemorySource()
	m.Push(death("npc:1", "", mathx.Vec3{}))
	m.Push(death("npc:2", "", mathx.Vec3{}))
	got, _ := m.Poll(context.Background())
	if len(got) != 2 || got[0].ID == got[1].ID {
		t.Fatalf("got=%+v", got)
	}
	if got, _ := m.Poll(context.Background()); len(got) != 0 {
		t.Fatalf("poll did not drain")
	}
}

func TestRedisSource_ReadsNewEntriesOnce(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)

	if _, err := Publish(ctx, rdb, "world", death("npc:1", "", mathx.Vec3{})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	src := NewRedisSource(rdb, "world", "$", logger)
	got, err := src.Poll(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("history replayed: %+v %v", got, err)
	}

	id, err := Publish(ctx, rdb, "world", death("npc:2", "char:3", mathx.V3(1, 2, 3)))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := rdb.XAdd(ctx, &redis.XAddArgs{Stream: "world", Values: map[string]any{"junk": "1"}}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	got, err = src.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(got) != 1 || got[0].ID != id || got[0].Victim != "npc:2" || got[0].WPos() != mathx.V3(1, 2, 3) {
		t.Fatalf("got=%+v", got)
	}

	got, err = src.Poll(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("entries returned twice: %+v %v", got, err)
	}
}

func TestRedisSource_ReplayFromStart(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()
	for _, v := range []string{"npc:1", "npc:2", "npc:3"} {
		if _, err := Publish(ctx, rdb, "world", death(v, "", mathx.Vec3{})); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	src := NewRedisSource(rdb, "world", "0", nil)
	got, err := src.Poll(ctx)
	if err != nil || len(got) != 3 {
		t.Fatalf("got=%d err=%v", len(got), err)
	}
	if src.LastID() != got[2].ID {
		t.Fatalf("last=%s", src.LastID())
	}
	if src.logger.Writer() != io.Discard {
		t.Fatalf("nil logger writes to %T", src.logger.Writer())
	}
}
