package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dahamkakooza/agrogram-gateway/internal/alert"
	"github.com/dahamkakooza/agrogram-gateway/internal/data"
)

// RegisterBuiltins installs the standard Agrogram keyword set.
func RegisterBuiltins(r *Registry, gw data.Gateway, subs *alert.Store) {
	r.Register(Spec{
		Keyword:  "PRICE",
		MinArgs:  1,
		MaxArgs:  2,
		Usage:    "PRICE <crop> [region]",
		Validate: []Validator{AlphaToken("crop"), AlphaToken("region")},
		Handler: func(ctx context.Context, cmd Command) (string, error) {
			region := ""
			if len(cmd.Args) > 1 {
				region = cmd.Args[1]
			}
			quote, err := gw.LatestPrice(ctx, cmd.Args[0], region)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %s %s/%s (%s)", quote.Crop,
				strconv.FormatFloat(quote.Price, 'f', -1, 64),
				quote.Currency, quote.Unit, quote.Region), nil
		},
	})

	r.Register(Spec{
		Keyword:  "WEATHER",
		MinArgs:  1,
		MaxArgs:  1,
		Usage:    "WEATHER <district>",
		Validate: []Validator{AlphaToken("district")},
		Handler: func(ctx context.Context, cmd Command) (string, error) {
			report, err := gw.Weather(ctx, cmd.Args[0])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Weather for %s: %s, %dC", report.Region, report.Summary, report.TempC), nil
		},
	})

	r.Register(Spec{
		Keyword:  "TIP",
		MinArgs:  1,
		MaxArgs:  1,
		Usage:    "TIP <crop>",
		Validate: []Validator{AlphaToken("crop")},
		Handler: func(ctx context.Context, cmd Command) (string, error) {
			tip, err := gw.Tip(ctx, cmd.Args[0])
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Tip (%s): %s", tip.Crop, tip.Text), nil
		},
	})

	r.Register(Spec{
		Keyword: "BAL",
		MinArgs: 0,
		MaxArgs: 0,
		Usage:   "BAL",
		Handler: func(ctx context.Context, cmd Command) (string, error) {
			bal, err := gw.Balance(ctx, cmd.Origin)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Your balance: %s %s", bal.Currency,
				strconv.FormatFloat(bal.Amount, 'f', -1, 64)), nil
		},
	})

	r.Register(Spec{
		Keyword:  "SUB",
		MinArgs:  2,
		MaxArgs:  2,
		Usage:    "SUB WEATHER <district> or SUB TIP <crop>",
		Validate: []Validator{subKindValidator, AlphaToken("topic")},
		Handler: func(ctx context.Context, cmd Command) (string, error) {
			kind := strings.ToUpper(cmd.Args[0])
			topic := cmd.Args[1]
			if _, err := subs.Add(cmd.Origin, kind, topic); err != nil {
				return "", err
			}
			return fmt.Sprintf("Subscribed to daily %s alerts for %s. Send UNSUB to stop.", kind, topic), nil
		},
	})

	r.Register(Spec{
		Keyword: "UNSUB",
		MinArgs: 0,
		MaxArgs: 0,
		Usage:   "UNSUB",
		Handler: func(ctx context.Context, cmd Command) (string, error) {
			removed, err := subs.RemoveByPhone(cmd.Origin)
			if err != nil {
				return "", err
			}
			if removed == 0 {
				return "You have no active subscriptions.", nil
			}
			return "You have been unsubscribed from all alerts.", nil
		},
	})

	r.Register(Spec{
		Keyword: "HELP",
		MinArgs: 0,
		MaxArgs: -1,
		Usage:   "HELP",
		Handler: func(ctx context.Context, cmd Command) (string, error) {
			return r.helpReply(), nil
		},
	})
}

func subKindValidator(arg string) error {
	switch strings.ToUpper(arg) {
	case alert.KindWeather, alert.KindTip:
		return nil
	}
	return fmt.Errorf("unknown alert kind %q", arg)
}
