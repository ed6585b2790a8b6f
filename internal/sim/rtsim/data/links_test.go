package data

import (
	"errors"
	"testing"

	"rtsim.ai/internal/sim/mathx"
)

func newTestData(t *testing.T, n int) (*Data, []NpcID) {
	t.Helper()
	d := New()
	ids := make([]NpcID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, d.CreateNpc(NewNpc(uint32(i), mathx.V3(float64(i), 0, 0), BodyHumanoid, Civilised(nil))))
	}
	return d, ids
}

func TestNpcLinks_MountSelf(t *testing.T) {
	d, ids := newTestData(t, 1)
	_, err := d.Mount(ids[0], NpcActor(ids[0]), true)
	if !errors.Is(err, MountSelf) {
		t.Fatalf("err=%v want MountSelf", err)
	}
	if d.Links.Len() != 0 {
		t.Fatalf("rejected mount must not create links")
	}
}

func TestNpcLinks_SecondSteererRejected(t *testing.T) {
	d, ids := newTestData(t, 3)
	if _, err := d.Mount(ids[0], NpcActor(ids[1]), true); err != nil {
		t.Fatalf("first steer: %v", err)
	}
	_, err := d.Mount(ids[0], NpcActor(ids[2]), true)
	if !errors.Is(err, HasSteerer) {
		t.Fatalf("err=%v want HasSteerer", err)
	}
	if _, ok := d.Links.GetMountLink(NpcActor(ids[2])); ok {
		t.Fatalf("rejected rider must not have a link")
	}
	// Passengers are still allowed.
	if _, err := d.Mount(ids[0], NpcActor(ids[2]), false); err != nil {
		t.Fatalf("ride as passenger: %v", err)
	}
}

func TestNpcLinks_DismountDropsEmptyMount(t *testing.T) {
	d, ids := newTestData(t, 3)
	if _, err := d.Mount(ids[0], NpcActor(ids[1]), true); err != nil {
		t.Fatalf("steer: %v", err)
	}
	if _, err := d.Mount(ids[0], NpcActor(ids[2]), false); err != nil {
		t.Fatalf("ride: %v", err)
	}

	d.Links.Dismount(NpcActor(ids[2]))
	if _, ok := d.Links.GetMountLink(NpcActor(ids[2])); ok {
		t.Fatalf("dismounted rider still linked")
	}
	if riders, ok := d.Links.Riders(ids[0]); !ok || len(riders) != 0 {
		t.Fatalf("mount entry should remain with steerer only: riders=%v ok=%v", riders, ok)
	}

	d.Links.Dismount(NpcActor(ids[1]))
	if _, ok := d.Links.Riders(ids[0]); ok {
		t.Fatalf("empty mount entry should be removed")
	}
	if len(d.Links.IterMounts()) != 0 {
		t.Fatalf("no mounts expected, got %v", d.Links.IterMounts())
	}
}

func TestNpcLinks_ValidationOrder(t *testing.T) {
	d, ids := newTestData(t, 5)
	a, b, c, e := ids[0], ids[1], ids[2], ids[3]
	if _, err := d.Mount(a, NpcActor(b), true); err != nil {
		t.Fatalf("steer: %v", err)
	}

	cases := []struct {
		name  string
		mount NpcID
		rider Actor
		want  MountError
	}{
		{"rider carries riders", c, NpcActor(a), RiderIsMounted},
		{"mount is riding", b, NpcActor(c), MountIsRiding},
		{"mount missing", NpcID(999), NpcActor(c), MountDead},
		{"rider missing", c, NpcActor(NpcID(998)), RiderDead},
		{"already riding", c, NpcActor(b), AlreadyRiding},
	}
	for _, tc := range cases {
		_, err := d.Mount(tc.mount, tc.rider, false)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}

	d.Npcs[e].HealthFraction = 0
	if _, err := d.Mount(e, CharacterActor(7), false); !errors.Is(err, MountDead) {
		t.Fatalf("dead mount: err=%v", err)
	}
}

func TestData_RemoveNpcCleansLinks(t *testing.T) {
	d, ids := newTestData(t, 3)
	if _, err := d.Mount(ids[0], NpcActor(ids[1]), true); err != nil {
		t.Fatalf("steer: %v", err)
	}
	if _, err := d.Mount(ids[0], CharacterActor(4), false); err != nil {
		t.Fatalf("ride: %v", err)
	}
	d.RemoveNpc(ids[0])
	if d.Links.Len() != 0 {
		t.Fatalf("links left after mount removal: %v", d.Links.Links())
	}
	if _, ok := d.Links.GetMountLink(CharacterActor(4)); ok {
		t.Fatalf("character still riding removed mount")
	}
	if _, err := d.Mount(ids[2], NpcActor(ids[1]), true); err != nil {
		t.Fatalf("rider should be free after mount removal: %v", err)
	}
}

func TestRestoreNpcLinks_RebuildsIndexes(t *testing.T) {
	d, ids := newTestData(t, 3)
	if _, err := d.Mount(ids[0], NpcActor(ids[1]), true); err != nil {
		t.Fatalf("steer: %v", err)
	}
	if _, err := d.Mount(ids[0], NpcActor(ids[2]), false); err != nil {
		t.Fatalf("ride: %v", err)
	}
	links := d.Links.Links()
	links = append(links, NpcLink{ID: 40, Mount: NpcID(500), Rider: CharacterActor(1)})

	got := RestoreNpcLinks(links, d.alive)
	if got.Len() != 2 {
		t.Fatalf("links=%d want 2", got.Len())
	}
	if l, ok := got.GetSteererLink(ids[0]); !ok || l.Rider != NpcActor(ids[1]) {
		t.Fatalf("steerer link mismatch: %+v ok=%v", l, ok)
	}
	id, err := got.AddMounting(ids[1], CharacterActor(9), false, nil)
	if !errors.Is(err, MountIsRiding) {
		t.Fatalf("restored rider index not honoured: id=%d err=%v", id, err)
	}
	id, err = got.AddMounting(NpcID(77), CharacterActor(1), false, nil)
	if err != nil {
		t.Fatalf("dropped link should free its rider: %v", err)
	}
	if id <= 40 {
		t.Fatalf("new link id %d should follow restored ids", id)
	}
}

func TestRestoreNpcLinks_DropsLinksBreakingMountRules(t *testing.T) {
	d, ids := newTestData(t, 5)
	links := []NpcLink{
		// Out of order on purpose; the lowest id wins conflicts.
		{ID: 4, Mount: ids[0], Rider: NpcActor(ids[4]), IsSteering: true},
		{ID: 2, Mount: ids[2], Rider: NpcActor(ids[1])},
		{ID: 1, Mount: ids[0], Rider: NpcActor(ids[1]), IsSteering: true},
		{ID: 3, Mount: ids[1], Rider: NpcActor(ids[3])},
		{ID: 5, Mount: ids[3], Rider: NpcActor(ids[0])},
		{ID: 1, Mount: ids[2], Rider: CharacterActor(8)},
	}

	got := RestoreNpcLinks(links, d.alive)
	if got.Len() != 1 {
		t.Fatalf("links=%+v want only link 1", got.Links())
	}
	if l, ok := got.GetMountLink(NpcActor(ids[1])); !ok || l.ID != 1 || l.Mount != ids[0] {
		t.Fatalf("rider link=%+v ok=%v", l, ok)
	}
	if l, ok := got.GetSteererLink(ids[0]); !ok || l.Rider != NpcActor(ids[1]) {
		t.Fatalf("steerer=%+v ok=%v", l, ok)
	}
	if _, ok := got.Riders(ids[2]); ok {
		t.Fatalf("second mount of the same rider restored")
	}
	if _, ok := got.GetMountLink(NpcActor(ids[3])); ok {
		t.Fatalf("chained link restored")
	}
	if mounts := got.IterMounts(); len(mounts) != 1 || mounts[0] != ids[0] {
		t.Fatalf("mounts=%v", mounts)
	}
	id, err := got.AddMounting(ids[2], CharacterActor(8), false, d.alive)
	if err != nil || id != 6 {
		t.Fatalf("next link id=%d err=%v, want 6", id, err)
	}
}
