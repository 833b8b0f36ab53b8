package menu

// UnavailableID is the static leaf rendered when a data fetch fails or
// times out. Kept in every tree so the fallback path never depends on the
// data gateway.
const UnavailableID = "unavailable"

// Default returns the built-in Agrogram menu, used when no menu file is
// configured. Screens stay under the 182-character USSD limit.
func Default() *Tree {
	t, err := New("main", "0", "00", []*Node{
		{
			ID:     "main",
			Prompt: "Welcome to Agrogram\n1. Prices\n2. Weather\n3. Tips\n4. My Account\n5. Exit",
			Edges: []Edge{
				{Input: "1", Next: "price.crop"},
				{Input: "2", Next: "weather.region"},
				{Input: "3", Next: "tip.crop"},
				{Input: "4", Next: "account.balance"},
				{Input: "5", Next: "exit"},
			},
		},
		{
			ID:     "price.crop",
			Prompt: "Enter crop name\n0. Back",
			Edges:  []Edge{{Input: WildcardInput, Next: "price.result"}},
			Back:   "main",
		},
		{
			ID:       "price.result",
			Prompt:   "{crop}: {price} {currency}/{unit} ({region})",
			Terminal: true,
			Fetch:    FetchPrice,
		},
		{
			ID:     "weather.region",
			Prompt: "Enter your district\n0. Back",
			Edges:  []Edge{{Input: WildcardInput, Next: "weather.result"}},
			Back:   "main",
		},
		{
			ID:       "weather.result",
			Prompt:   "Weather for {region}: {summary}, {tempC}C",
			Terminal: true,
			Fetch:    FetchWeather,
		},
		{
			ID:     "tip.crop",
			Prompt: "Enter crop name\n0. Back",
			Edges:  []Edge{{Input: WildcardInput, Next: "tip.result"}},
			Back:   "main",
		},
		{
			ID:       "tip.result",
			Prompt:   "{tip}",
			Terminal: true,
			Fetch:    FetchTip,
		},
		{
			ID:       "account.balance",
			Prompt:   "Your balance: {currency} {amount}",
			Terminal: true,
			Fetch:    FetchBalance,
		},
		{
			ID:       "exit",
			Prompt:   "Thank you for using Agrogram.",
			Terminal: true,
		},
		{
			ID:       UnavailableID,
			Prompt:   "Service temporarily unavailable. Please try again later.",
			Terminal: true,
		},
	})
	if err != nil {
		// The built-in table is fixed; a failure here is a programming error.
		panic(err)
	}
	return t
}
