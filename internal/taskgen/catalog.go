package taskgen

import "github.com/xkilldash9x/webgym/api/schemas"

// taskSeed is one catalog entry. Paths are joined onto the configured base
// URL at generation time.
type taskSeed struct {
	goal   string
	path   string
	aux    map[string]string
	checks []schemas.Check
}

// seedCatalog holds the deterministic per-project tasks the static provider
// cycles through. The check values assume the bundled demo deployments of
// each project.
var seedCatalog = map[string][]taskSeed{
	"shop": {
		{
			goal: "Search for red shoes and open the first result",
			path: "/",
			aux:  map[string]string{schemas.AuxInputText: "red shoes"},
			checks: []schemas.Check{
				{Kind: schemas.CheckURLContains, Value: "/product/"},
				{Kind: schemas.CheckTextPresent, Value: "red shoes"},
			},
		},
		{
			goal: "Add any product to the cart",
			path: "/",
			checks: []schemas.Check{
				{Kind: schemas.CheckEventEmitted, Value: "added_to_cart"},
				{Kind: schemas.CheckSelectorExists, Value: "#cart-count"},
			},
		},
		{
			goal: "Complete checkout with the default payment method",
			path: "/cart",
			checks: []schemas.Check{
				{Kind: schemas.CheckURLContains, Value: "/checkout/complete"},
				{Kind: schemas.CheckTextPresent, Value: "thank you"},
			},
		},
	},
	"forum": {
		{
			goal: "Open the announcements thread",
			path: "/",
			checks: []schemas.Check{
				{Kind: schemas.CheckURLContains, Value: "/t/"},
				{Kind: schemas.CheckTextPresent, Value: "announcements"},
			},
		},
		{
			goal: "Reply to the newest thread thanking the author",
			path: "/",
			aux:  map[string]string{schemas.AuxInputText: "Thanks for writing this up!"},
			checks: []schemas.Check{
				{Kind: schemas.CheckTextPresent, Value: "thanks for writing this up"},
				{Kind: schemas.CheckEventEmitted, Value: "reply_posted"},
			},
		},
		{
			goal: "Search the forum for release notes",
			path: "/",
			aux:  map[string]string{schemas.AuxInputText: "release notes"},
			checks: []schemas.Check{
				{Kind: schemas.CheckURLContains, Value: "search"},
			},
		},
	},
	"crm": {
		{
			goal: "Create a new contact named Ada Lovelace",
			path: "/contacts",
			aux:  map[string]string{schemas.AuxInputText: "Ada Lovelace"},
			checks: []schemas.Check{
				{Kind: schemas.CheckTextPresent, Value: "ada lovelace"},
				{Kind: schemas.CheckEventEmitted, Value: "contact_created"},
			},
		},
		{
			goal: "Open the deals pipeline",
			path: "/",
			checks: []schemas.Check{
				{Kind: schemas.CheckURLContains, Value: "/deals"},
			},
		},
		{
			goal: "Log a call on the most recent lead",
			path: "/leads",
			checks: []schemas.Check{
				{Kind: schemas.CheckEventEmitted, Value: "activity_logged"},
			},
		},
	},
}
