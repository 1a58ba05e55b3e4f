package venue

import (
	"fmt"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/types"
)

// Hop is one swap along a reward route.
type Hop struct {
	From  types.AssetID
	To    types.AssetID
	Venue Swap
}

// Route converts one reward asset into a base asset through one or more hops.
type Route struct {
	Reward types.AssetID
	Hops   []Hop
}

// Target returns the asset the route ends in.
func (r Route) Target() types.AssetID {
	if len(r.Hops) == 0 {
		return r.Reward
	}
	return r.Hops[len(r.Hops)-1].To
}

// BuildRoutes binds the registry's reward routes to constructed swap venues.
func BuildRoutes(reg *config.VenueRegistry, swaps map[string]Swap) (map[types.AssetID]Route, error) {
	routes := make(map[types.AssetID]Route, len(reg.RewardRoutes))
	for _, reward := range reg.Assets.Rewards() {
		hops := reg.RewardRoutes[reward]
		route := Route{Reward: reward, Hops: make([]Hop, 0, len(hops))}
		for i, h := range hops {
			sw, ok := swaps[h.Venue]
			if !ok {
				return nil, fmt.Errorf("route %s hop %d: swap venue %s is not bound", reward, i, h.Venue)
			}
			route.Hops = append(route.Hops, Hop{From: h.From, To: h.To, Venue: sw})
		}
		routes[reward] = route
	}
	return routes, nil
}
