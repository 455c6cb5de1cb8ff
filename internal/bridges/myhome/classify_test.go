package myhome

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

type keySet map[openwebnet.Key]bool

func (k keySet) Has(key openwebnet.Key) bool { return k[key] }

func TestClassify(t *testing.T) {
	known := keySet{"1-0101": true, "4-1": true, "25-12": true}

	tests := []struct {
		name string
		raw  string
		want Decision
	}{
		{
			name: "translation is ignored",
			raw:  "*1*1000#1*0101##",
			want: Ignore{Reason: "translation"},
		},
		{
			name: "point to point light registered",
			raw:  "*1*1*0101##",
			want: Routed{Key: "1-0101", Registered: true},
		},
		{
			name: "point to point light unknown",
			raw:  "*1*0*0202##",
			want: Routed{Key: "1-0202", Registered: false},
		},
		{
			name: "brightness dimension is routed",
			raw:  "*#1*0101*1*175*0##",
			want: Routed{Key: "1-0101", Registered: true},
		},
		{
			name: "brightness preset requeries",
			raw:  "*1*5*0101##",
			want: Requery{Key: "1-0101", Registered: true},
		},
		{
			name: "general light broadcast",
			raw:  "*1*1*0##",
			want: Broadcast{
				Event:         EventGeneralLight,
				Scope:         openwebnet.Scope{Kind: openwebnet.ScopeGeneral, ID: "0"},
				Semantic:      SemanticOn,
				StatusRequest: "*#1*0##",
			},
		},
		{
			name: "area light broadcast",
			raw:  "*1*0*3##",
			want: Broadcast{
				Event:         EventAreaLight,
				Scope:         openwebnet.Scope{Kind: openwebnet.ScopeArea, ID: "3"},
				Semantic:      SemanticOff,
				StatusRequest: "*#1*3##",
			},
		},
		{
			name: "group light broadcast has no requery",
			raw:  "*1*1*#5##",
			want: Broadcast{
				Event:    EventGroupLight,
				Scope:    openwebnet.Scope{Kind: openwebnet.ScopeGroup, ID: "5"},
				Semantic: SemanticOn,
			},
		},
		{
			name: "general automation stop",
			raw:  "*2*0*0##",
			want: Broadcast{
				Event:    EventGeneralAutomation,
				Scope:    openwebnet.Scope{Kind: openwebnet.ScopeGeneral, ID: "0"},
				Semantic: SemanticStop,
			},
		},
		{
			name: "area automation open",
			raw:  "*2*1*4##",
			want: Broadcast{
				Event:    EventAreaAutomation,
				Scope:    openwebnet.Scope{Kind: openwebnet.ScopeArea, ID: "4"},
				Semantic: SemanticOpen,
			},
		},
		{
			name: "point to point cover",
			raw:  "*2*2*41##",
			want: Routed{Key: "2-41", Registered: false},
		},
		{
			name: "heating measurement",
			raw:  "*#4*1*0*0215##",
			want: Routed{Key: "4-1", Registered: true},
		},
		{
			name: "heating set point echo registered",
			raw:  "*#4*#1*#14*0215*3##",
			want: Requery{Key: "4-1", Registered: true},
		},
		{
			name: "heating set point echo unknown zone falls back to status",
			raw:  "*#4*#7*#14*0215*3##",
			want: Requery{Key: "4-7", Registered: false, Fallback: "*#4*7##"},
		},
		{
			name: "energy",
			raw:  "*#18*51*113*1250##",
			want: Routed{Key: "18-51", Registered: false},
		},
		{
			name: "dry contact",
			raw:  "*25*31*9999##",
			want: Routed{Key: "25-9999", Registered: false},
		},
		{
			name: "aux",
			raw:  "*9*1*3##",
			want: Routed{Key: "9-3", Registered: false},
		},
		{
			name: "cen",
			raw:  "*15*5#2*21##",
			want: Button{Event: EventCEN, Object: 21, PushButton: 5, Action: openwebnet.LongPress},
		},
		{
			name: "cen plus",
			raw:  "*25*21#3*212##",
			want: Button{Event: EventCENPlus, Object: 12, PushButton: 3, Action: openwebnet.ShortPress},
		},
		{
			name: "gateway management",
			raw:  "*#13**0*10*30*00*001##",
			want: Unknown{Reason: "gateway management"},
		},
		{
			name: "scenario",
			raw:  "*0*3*11##",
			want: Unknown{Reason: "unsupported frame"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(mustParse(t, tt.raw), known))
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.IsType(t, Unknown{}, Classify(nil, keySet{}))
}

func TestClassifyDoesNotConsultKeysForBroadcasts(t *testing.T) {
	// A key set that panics proves broadcasts and buttons never look up keys.
	var nilSet *Registry
	assert.NotPanics(t, func() {
		Classify(mustParse(t, "*1*1*0##"), nilSet)
		Classify(mustParse(t, "*15*5*21##"), nilSet)
	})
}

func TestCoverSemantic(t *testing.T) {
	assert.Equal(t, SemanticOpen, coverSemantic(true, false))
	assert.Equal(t, SemanticClose, coverSemantic(false, true))
	assert.Equal(t, SemanticStop, coverSemantic(false, false))
	assert.Equal(t, SemanticStop, coverSemantic(true, true))
}
