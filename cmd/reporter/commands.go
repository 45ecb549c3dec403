package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/session"
)

// fixFlags describe a device geolocation answer on the command line.
type fixFlags struct {
	lat, lng, accuracy float64
	fail               string
}

func (f *fixFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude reported by the device")
	cmd.Flags().Float64Var(&f.lng, "lng", 0, "longitude reported by the device")
	cmd.Flags().Float64Var(&f.accuracy, "accuracy", 0, "fix accuracy in meters")
	cmd.Flags().StringVar(&f.fail, "fail", "", "simulate a device failure: permission_denied, position_unavailable or timeout")
}

// source returns the position source described by the flags, or nil when the
// device reports nothing and only the IP fallback applies.
func (f *fixFlags) source(cmd *cobra.Command) (domain.PositionSource, error) {
	switch domain.ErrorKind(f.fail) {
	case "":
	case domain.KindPermissionDenied:
		return domain.StaticSource{Err: domain.ErrPermissionDenied}, nil
	case domain.KindPositionUnavailable:
		return domain.StaticSource{Err: domain.ErrPositionUnavailable}, nil
	case domain.KindTimeout:
		return domain.StaticSource{Err: domain.ErrTimeout}, nil
	default:
		return nil, fmt.Errorf("unknown --fail value %q", f.fail)
	}
	if !cmd.Flags().Changed("lat") && !cmd.Flags().Changed("lng") {
		return nil, nil
	}
	pos := domain.Position{Lat: f.lat, Lon: f.lng, Accuracy: f.accuracy}
	if !pos.Valid() {
		return nil, fmt.Errorf("coordinates %v,%v out of range", f.lat, f.lng)
	}
	return domain.StaticSource{Fix: pos}, nil
}

func newLocateCmd() *cobra.Command {
	var fix fixFlags
	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Resolve a position and the address the form would be filled with",
		Long: `locate runs the geolocation cascade (precise, then relaxed, then coarse),
falls back to IP location, and reverse geocodes a device fix. An IP fix is
labelled with its city and is not reverse geocoded.
Without --lat/--lng the device is treated as having no geolocation.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			src, err := fix.source(cmd)
			if err != nil {
				return err
			}
			sess := session.New(uuid.NewString(), a.sessionOptions(), a.sessionDeps())
			snap, err := sess.Locate(ctx, src)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		}),
	}
	fix.register(cmd)
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var (
		fix       fixFlags
		locate    bool
		fields    session.FormFields
		values    = map[string]*string{}
		imagePath string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a drug report",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			sess := session.New(uuid.NewString(), a.sessionOptions(), a.sessionDeps())

			src, err := fix.source(cmd)
			if err != nil {
				return err
			}
			if src != nil || locate {
				if _, err := sess.Locate(ctx, src); err != nil {
					return fmt.Errorf("locate: %w", err)
				}
			}

			// Explicit flags override whatever the geocoder filled in.
			for name, v := range values {
				if cmd.Flags().Changed(name) {
					setField(&fields, name, *v)
				}
			}
			sess.UpdateFields(fields)

			if imagePath != "" {
				img, err := readImage(imagePath)
				if err != nil {
					return err
				}
				if err := sess.AttachImage(img); err != nil {
					return err
				}
			}

			out, err := sess.Submit(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	}
	fix.register(cmd)
	cmd.Flags().BoolVar(&locate, "locate", false, "locate by IP when no device fix is given")
	for _, name := range []string{"drug", "nafdac", "pharmacy", "description", "state", "lga", "address"} {
		values[name] = cmd.Flags().String(name, "", formFlagUsage[name])
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "path to an image of the product (max 5 MB)")
	return cmd
}

var formFlagUsage = map[string]string{
	"drug":        "drug name",
	"nafdac":      "NAFDAC registration number",
	"pharmacy":    "pharmacy name",
	"description": "what is wrong with the product",
	"state":       "state, one of the 36 states or the FCT",
	"lga":         "local government area",
	"address":     "street address",
}

func setField(f *session.FormFields, name, v string) {
	switch name {
	case "drug":
		f.DrugName = &v
	case "nafdac":
		f.NafdacRegNo = &v
	case "pharmacy":
		f.PharmacyName = &v
	case "description":
		f.Description = &v
	case "state":
		f.State = &v
	case "lga":
		f.LGA = &v
	case "address":
		f.StreetAddress = &v
	}
}

func readImage(path string) (domain.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("read image: %w", err)
	}
	if info.Size() > domain.MaxImageBytes {
		return domain.Attachment{}, &domain.ValidationError{Fields: []string{"image-upload"}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("read image: %w", err)
	}
	return domain.Attachment{
		Filename:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func newFlaggedCmd() *cobra.Command {
	var q backend.FlaggedQuery
	cmd := &cobra.Command{
		Use:   "flagged",
		Short: "List pharmacies flagged by reports",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			page, err := a.backend.GetFlagged(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		}),
	}
	cmd.Flags().StringVar(&q.Pharmacy, "pharmacy", "", "filter by pharmacy name")
	cmd.Flags().StringVar(&q.State, "state", "", "filter by state")
	cmd.Flags().StringVar(&q.LGA, "lga", "", "filter by LGA")
	cmd.Flags().StringVar(&q.Drug, "drug", "", "filter by drug name")
	cmd.Flags().StringVar(&q.SortBy, "sort-by", "", "sort field (default report_count)")
	cmd.Flags().StringVar(&q.SortOrder, "sort-order", "", "asc or desc (default desc)")
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.Limit, "limit", 10, "results per page")
	return cmd
}

func newPharmacyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pharmacy NAME",
		Short: "Show the reports filed against one pharmacy",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			res, err := a.backend.GetPharmacyReports(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}),
	}
}

func newNearbyCmd() *cobra.Command {
	var (
		lat, lng float64
		device   string
	)
	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "Find pharmacies and clinics near a position",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			pos := domain.Position{Lat: lat, Lon: lng}
			if !pos.Valid() {
				return fmt.Errorf("coordinates %v,%v out of range", lat, lng)
			}
			d := backend.Device(device)
			if d != backend.DeviceMobile && d != backend.DeviceDesktop {
				return fmt.Errorf("unknown --device %q", device)
			}
			res, err := a.nearby.Lookup(ctx, pos, d)
			if err != nil {
				return err
			}
			if res.Cause != nil {
				a.logger.Warn("showing cached results", "stored_at", res.StoredAt, "cause", res.Cause)
			}
			return printJSON(cmd.OutOrStdout(), res.Places)
		}),
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().StringVar(&device, "device", string(backend.DeviceDesktop), "mobile or desktop")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func newChatCmd() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Ask the AI health companion a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			reply, err := a.companion.Ask(ctx, strings.Join(args, " "), language)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		}),
	}
	cmd.Flags().StringVar(&language, "language", "english", "english, pidgin, yoruba, hausa or igbo")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the companion chat history",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if wipe {
				return a.companion.ClearHistory(ctx)
			}
			hist, err := a.companion.History(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), hist)
		}),
	}
	cmd.Flags().BoolVar(&wipe, "clear", false, "delete the history instead of printing it")
	return cmd
}

func newFeedbackCmd() *cobra.Command {
	var fb backend.Feedback
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Send feedback about the app",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			rec, err := a.companion.SendFeedback(ctx, fb)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		}),
	}
	cmd.Flags().IntVar(&fb.Rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&fb.FeedbackType, "type", "general", "feedback type")
	cmd.Flags().StringVar(&fb.Message, "message", "", "free-text message")
	cmd.Flags().StringVar(&fb.Language, "language", "english", "language of the message")
	cmd.Flags().StringVar(&fb.PageURL, "page-url", "", "page the feedback is about")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}
