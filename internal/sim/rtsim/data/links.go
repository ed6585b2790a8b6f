package data

import "sort"

// MountError is the closed set of reasons a mount request is rejected.
type MountError uint8

const (
	MountSelf MountError = iota + 1
	RiderIsMounted
	MountIsRiding
	MountDead
	RiderDead
	AlreadyRiding
	HasSteerer
)

var mountErrorNames = map[MountError]string{
	MountSelf:      "actor cannot mount itself",
	RiderIsMounted: "rider is itself being ridden",
	MountIsRiding:  "mount is riding something else",
	MountDead:      "mount is dead or missing",
	RiderDead:      "rider is dead or missing",
	AlreadyRiding:  "rider already has a mount",
	HasSteerer:     "mount already has a steerer",
}

func (e MountError) Error() string {
	if s, ok := mountErrorNames[e]; ok {
		return "mount: " + s
	}
	return "mount: unknown error"
}

type MountLinkID uint64

// NpcLink is one rider sitting on one mount.
type NpcLink struct {
	ID         MountLinkID
	Mount      NpcID
	Rider      Actor
	IsSteering bool
}

type riders struct {
	steerer MountLinkID // 0 = none
	riders  []MountLinkID
}

func (r *riders) empty() bool { return r.steerer == 0 && len(r.riders) == 0 }

// NpcLinks stores mount/rider links with indexes mount -> riders and
// rider -> link. All mutation goes through its methods.
type NpcLinks struct {
	nextID   MountLinkID
	links    map[MountLinkID]NpcLink
	mountMap map[NpcID]*riders
	riderMap map[Actor]MountLinkID
}

func NewNpcLinks() *NpcLinks {
	return &NpcLinks{
		nextID:   1,
		links:    map[MountLinkID]NpcLink{},
		mountMap: map[NpcID]*riders{},
		riderMap: map[Actor]MountLinkID{},
	}
}

// AddMounting validates and creates a link. exists reports whether an NPC
// is present and alive; a nil exists treats every NPC as alive.
// Characters are always considered alive here.
func (l *NpcLinks) AddMounting(mount NpcID, rider Actor, steering bool, exists func(NpcID) bool) (MountLinkID, error) {
	if err := l.check(mount, rider, steering, exists); err != nil {
		return 0, err
	}
	id := l.nextID
	l.insert(NpcLink{ID: id, Mount: mount, Rider: rider, IsSteering: steering})
	return id, nil
}

// check applies the mount rules in a fixed order, so the first violated
// rule is the one reported.
func (l *NpcLinks) check(mount NpcID, rider Actor, steering bool, exists func(NpcID) bool) error {
	if rider == NpcActor(mount) {
		return MountSelf
	}
	if rid, ok := rider.NpcID(); ok {
		if _, mounted := l.mountMap[rid]; mounted {
			return RiderIsMounted
		}
	}
	if _, riding := l.riderMap[NpcActor(mount)]; riding {
		return MountIsRiding
	}
	if exists != nil && !exists(mount) {
		return MountDead
	}
	if rid, ok := rider.NpcID(); ok && exists != nil && !exists(rid) {
		return RiderDead
	}
	if _, ok := l.riderMap[rider]; ok {
		return AlreadyRiding
	}
	if r := l.mountMap[mount]; steering && r != nil && r.steerer != 0 {
		return HasSteerer
	}
	return nil
}

func (l *NpcLinks) insert(link NpcLink) {
	r := l.mountMap[link.Mount]
	if r == nil {
		r = &riders{}
		l.mountMap[link.Mount] = r
	}
	if link.IsSteering {
		r.steerer = link.ID
	} else {
		r.riders = append(r.riders, link.ID)
	}
	l.links[link.ID] = link
	l.riderMap[link.Rider] = link.ID
	if link.ID >= l.nextID {
		l.nextID = link.ID + 1
	}
}

func (l *NpcLinks) Steer(mount NpcID, rider Actor, exists func(NpcID) bool) (MountLinkID, error) {
	return l.AddMounting(mount, rider, true, exists)
}

func (l *NpcLinks) Ride(mount NpcID, rider Actor, exists func(NpcID) bool) (MountLinkID, error) {
	return l.AddMounting(mount, rider, false, exists)
}

// unlinkFromMount removes id from the mount index, dropping the entry once
// the mount has no riders left.
func (l *NpcLinks) unlinkFromMount(id MountLinkID, link NpcLink) {
	r, ok := l.mountMap[link.Mount]
	if !ok {
		return
	}
	if link.IsSteering && r.steerer == id {
		r.steerer = 0
	} else {
		for i, rid := range r.riders {
			if rid == id {
				r.riders = append(r.riders[:i], r.riders[i+1:]...)
				break
			}
		}
	}
	if r.empty() {
		delete(l.mountMap, link.Mount)
	}
}

// RemoveMount deletes every link onto mount.
func (l *NpcLinks) RemoveMount(mount NpcID) {
	r, ok := l.mountMap[mount]
	if !ok {
		return
	}
	delete(l.mountMap, mount)
	ids := append([]MountLinkID{}, r.riders...)
	if r.steerer != 0 {
		ids = append(ids, r.steerer)
	}
	for _, id := range ids {
		if link, ok := l.links[id]; ok {
			delete(l.riderMap, link.Rider)
			delete(l.links, id)
		}
	}
}

func (l *NpcLinks) RemoveLink(id MountLinkID) {
	link, ok := l.links[id]
	if !ok {
		return
	}
	delete(l.links, id)
	delete(l.riderMap, link.Rider)
	l.unlinkFromMount(id, link)
}

// Dismount removes the rider's link, if any.
func (l *NpcLinks) Dismount(rider Actor) {
	id, ok := l.riderMap[rider]
	if !ok {
		return
	}
	delete(l.riderMap, rider)
	if link, ok := l.links[id]; ok {
		delete(l.links, id)
		l.unlinkFromMount(id, link)
	}
}

func (l *NpcLinks) GetMountLink(rider Actor) (NpcLink, bool) {
	id, ok := l.riderMap[rider]
	if !ok {
		return NpcLink{}, false
	}
	link, ok := l.links[id]
	return link, ok
}

func (l *NpcLinks) GetSteererLink(mount NpcID) (NpcLink, bool) {
	r, ok := l.mountMap[mount]
	if !ok || r.steerer == 0 {
		return NpcLink{}, false
	}
	link, ok := l.links[r.steerer]
	return link, ok
}

// Riders returns the non-steering riders of mount and whether the mount has
// an index entry at all.
func (l *NpcLinks) Riders(mount NpcID) ([]Actor, bool) {
	r, ok := l.mountMap[mount]
	if !ok {
		return nil, false
	}
	out := make([]Actor, 0, len(r.riders))
	for _, id := range r.riders {
		out = append(out, l.links[id].Rider)
	}
	return out, true
}

func (l *NpcLinks) Get(id MountLinkID) (NpcLink, bool) {
	link, ok := l.links[id]
	return link, ok
}

func (l *NpcLinks) Len() int { return len(l.links) }

// Links returns every link ordered by id.
func (l *NpcLinks) Links() []NpcLink {
	out := make([]NpcLink, 0, len(l.links))
	for _, link := range l.links {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IterMounts returns every NPC currently carrying a rider, ascending.
func (l *NpcLinks) IterMounts() []NpcID {
	out := make([]NpcID, 0, len(l.mountMap))
	for id := range l.mountMap {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RestoreNpcLinks rebuilds the indexes from persisted links. Links are
// replayed in id order under the AddMounting rules; one that breaks them is
// dropped, so the earlier link wins. Ids are preserved and new ids continue
// after the highest persisted one.
func RestoreNpcLinks(links []NpcLink, exists func(NpcID) bool) *NpcLinks {
	sorted := append([]NpcLink(nil), links...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	l := NewNpcLinks()
	for _, link := range sorted {
		if link.ID >= l.nextID {
			l.nextID = link.ID + 1
		}
		if _, dup := l.links[link.ID]; dup || link.ID == 0 {
			continue
		}
		if l.check(link.Mount, link.Rider, link.IsSteering, exists) != nil {
			continue
		}
		l.insert(link)
	}
	return l
}
