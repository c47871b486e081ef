package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/healthpost/vaxsched/internal/calendar"
	"github.com/healthpost/vaxsched/internal/config"
	"github.com/healthpost/vaxsched/internal/program"
	"github.com/healthpost/vaxsched/internal/schedule"
)

type scheduleOptions struct {
	program    string
	anchor     string
	regimen    string
	given      []string
	today      string
	timezone   string
	privileged bool
	templates  string
	grace      int
}

// scheduleCmd computes a schedule offline, replaying --given administrations
// in order through the same engine the server uses.
func scheduleCmd() *cobra.Command {
	var opts scheduleOptions
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the computed schedule for an anchor date",
		Example: `  vaxsched schedule --program child --anchor 2081-05-01
  vaxsched schedule --program rabies --regimen intramuscular --anchor 2081-08-10 --given D0=2081-08-10 --given D3=2081-08-14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.program, "program", "", "Program: child, maternal-td or rabies")
	f.StringVar(&opts.anchor, "anchor", "", "Anchor date in BS (YYYY-MM-DD)")
	f.StringVar(&opts.regimen, "regimen", "", "Rabies regimen: intradermal or intramuscular")
	f.StringArrayVar(&opts.given, "given", nil, "Administered dose as NAME=BSDATE (repeatable)")
	f.StringVar(&opts.today, "today", "", "Today as an AD date (default: current date in --timezone)")
	f.StringVar(&opts.timezone, "timezone", config.DefaultTimezone, "Facility time zone that decides today's date")
	f.BoolVar(&opts.privileged, "privileged", false, "Bypass the before-schedule and already-given rules")
	f.StringVar(&opts.templates, "templates", "", "YAML program template overrides")
	f.IntVar(&opts.grace, "grace", 0, "Days past the scheduled date before a dose counts as missed")
	_ = cmd.MarkFlagRequired("program")
	_ = cmd.MarkFlagRequired("anchor")
	return cmd
}

func runSchedule(w io.Writer, opts scheduleOptions) error {
	conv := calendar.Default()

	catalog := program.DefaultCatalog()
	if opts.templates != "" {
		c, err := program.LoadCatalog(opts.templates)
		if err != nil {
			return err
		}
		catalog = c
	}

	kind, err := program.ParseKind(opts.program)
	if err != nil {
		return err
	}
	regimen, err := program.ParseRegimen(opts.regimen)
	if err != nil {
		return err
	}
	if kind == program.Rabies && regimen == program.RegimenNone {
		regimen = program.Intradermal
	}
	tpl, err := catalog.Template(kind, regimen)
	if err != nil {
		return err
	}

	anchor, err := conv.ParsePair(opts.anchor)
	if err != nil {
		return err
	}
	var today calendar.Date
	if opts.today != "" {
		if today, err = calendar.ParseAD(opts.today); err != nil {
			return err
		}
	} else {
		tz := opts.timezone
		if tz == "" {
			tz = config.DefaultTimezone
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("--timezone %q: %w", tz, err)
		}
		today = calendar.Today(loc)
	}

	engine := schedule.NewEngine(conv)
	sched, err := engine.Scheduler().Compute(anchor.AD, tpl, schedule.Schedule{})
	if err != nil {
		return err
	}

	for _, g := range opts.given {
		name, date, ok := strings.Cut(g, "=")
		if !ok {
			return fmt.Errorf("--given %q: expected NAME=BSDATE", g)
		}
		given, err := conv.ParsePair(strings.TrimSpace(date))
		if err != nil {
			return fmt.Errorf("--given %q: %w", g, err)
		}
		sched, err = engine.OnDoseAdministered(sched, schedule.Administration{
			Anchor:     anchor.AD,
			Template:   tpl,
			Dose:       strings.TrimSpace(name),
			Given:      given.AD,
			Today:      today,
			Privileged: opts.privileged,
		})
		if err != nil {
			var rej *schedule.EligibilityRejection
			if errors.As(err, &rej) {
				return fmt.Errorf("--given %q rejected (%s): %w", g, rej.Rule, err)
			}
			return fmt.Errorf("--given %q: %w", g, err)
		}
	}

	sched = sched.WithOverdue(today, opts.grace)
	fmt.Fprintf(w, "Program: %s", kind)
	if regimen != program.RegimenNone {
		fmt.Fprintf(w, " (%s)", regimen)
	}
	fmt.Fprintf(w, "\nAnchor:  %s BS / %s AD\nToday:   %s AD\n\n", anchor.BS, anchor.AD, today)
	renderSchedule(w, sched)
	return nil
}

func renderSchedule(w io.Writer, s schedule.Schedule) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Dose", "Anchor", "Scheduled (BS)", "Scheduled (AD)", "Status", "Given (BS)"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, d := range s.Doses() {
		bs, ad := string(d.Resolution), string(d.Resolution)
		if d.HasDate() {
			bs, ad = d.Scheduled.BS.String(), d.Scheduled.AD.String()
		}
		given := "-"
		if d.IsGiven() {
			given = d.Given.BS.String()
		}
		anchor := d.Anchor
		if anchor == "" {
			anchor = "-"
		}
		table.Append([]string{d.Name, anchor, bs, ad, string(d.Status), given})
	}
	table.Render()
}

func convertCmd() *cobra.Command {
	var ad, bs string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a date between AD and BS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.OutOrStdout(), ad, bs)
		},
	}
	cmd.Flags().StringVar(&ad, "ad", "", "Gregorian date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&bs, "bs", "", "Bikram Sambat date (YYYY-MM-DD)")
	cmd.MarkFlagsMutuallyExclusive("ad", "bs")
	cmd.MarkFlagsOneRequired("ad", "bs")
	return cmd
}

func runConvert(w io.Writer, ad, bs string) error {
	conv := calendar.Default()
	var (
		p   calendar.Pair
		err error
	)
	if ad != "" {
		var d calendar.Date
		if d, err = calendar.ParseAD(ad); err == nil {
			p, err = conv.FromAD(d)
		}
	} else {
		p, err = conv.ParsePair(bs)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "AD %s = BS %s\n", p.AD, p.BS)
	return nil
}
