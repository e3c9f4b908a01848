package main

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/auth"
	"campusfix/backend/internal/complaint"
	"campusfix/backend/internal/config"
	"campusfix/backend/internal/logger"
	"campusfix/backend/internal/models"
	"campusfix/backend/internal/notify"
	"campusfix/backend/internal/storage"
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const usage = `Usage: admin <command> [args]

Commands:
  seed                   create the demo accounts (password: password123)
                         and sample complaints
  create-user <username> <password> <role> <name> [email]
  list-users [role]
  set-status <complaint_id> <status> <actor_username>`

// demoUsers mirror the sample accounts of the portal's sign-in page.
var demoUsers = []auth.NewUser{
	{Username: "student1", Name: "John Student", Email: "student1@campus.edu", Role: models.RoleStudent},
	{Username: "admin1", Name: "Jane Admin", Email: "admin1@campus.edu", Role: models.RoleAdmin},
	{Username: "maintenance1", Name: "Mike Maintenance", Email: "maintenance1@campus.edu", Role: models.RoleMaintenance},
}

const demoPassword = "password123"

// sampleComplaint is filed by student1 and then walked to status.
type sampleComplaint struct {
	complaint.NewComplaint
	status models.Status
}

func sample(title, description string, category models.Category, priority models.Priority, location string, status models.Status) sampleComplaint {
	return sampleComplaint{
		NewComplaint: complaint.NewComplaint{
			Title:            title,
			Description:      description,
			Category:         category,
			Priority:         priority,
			Building:         "Building A",
			RoomNumber:       "101",
			SpecificLocation: location,
		},
		status: status,
	}
}

var sampleComplaints = []sampleComplaint{
	sample("Broken faucet in bathroom", "The main faucet in the bathroom is leaking continuously and won't shut off properly.",
		models.CategoryPlumbing, models.PriorityMedium, "Main bathroom", models.StatusSubmitted),
	sample("Air conditioning not working", "The AC unit in the room has stopped working completely. Room is getting very hot.",
		models.CategoryHVAC, models.PriorityHigh, "Main room", models.StatusAssigned),
	sample("Electrical outlet sparking", "The outlet near the desk is making sparking sounds and appears dangerous.",
		models.CategoryElectrical, models.PriorityUrgent, "Near desk area", models.StatusInProgress),
	sample("Door lock broken", "The main door lock is jammed and won't open or close properly.",
		models.CategoryStructural, models.PriorityHigh, "Main entrance", models.StatusResolved),
	sample("Room needs deep cleaning", "Room hasn't been properly cleaned in weeks, needs thorough cleaning.",
		models.CategoryCleaning, models.PriorityLow, "Entire room", models.StatusClosed),
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, "console", "campusfix-admin")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	store, closeStore, err := storage.Open(cfg, zl)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	provider := auth.NewProvider(store, auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL), zl)

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "seed":
		err = seed(ctx, store, provider, zl)
	case "create-user":
		if len(args) < 4 {
			fmt.Println("Usage: admin create-user <username> <password> <role> <name> [email]")
			os.Exit(1)
		}
		in := auth.NewUser{Username: args[0], Password: args[1], Role: models.Role(args[2]), Name: args[3]}
		if len(args) > 4 {
			in.Email = args[4]
		}
		var p *models.Profile
		if p, err = provider.Register(ctx, auth.SystemActor, in); err == nil {
			fmt.Printf("User %s created with id %s.\n", p.Username, p.ID)
		}
	case "list-users":
		var role models.Role
		if len(args) > 0 {
			role = models.Role(args[0])
		}
		err = listUsers(ctx, provider, role)
	case "set-status":
		if len(args) != 3 {
			fmt.Println("Usage: admin set-status <complaint_id> <status> <actor_username>")
			os.Exit(1)
		}
		err = setStatus(ctx, store, zl, args[0], models.Status(args[1]), args[2])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

// seed creates the demo accounts, skipping any that already exist, then
// files the sample complaints unless student1 already has some.
func seed(ctx context.Context, store storage.Storage, provider *auth.Provider, zl *zap.Logger) error {
	for _, u := range demoUsers {
		u.Password = demoPassword
		p, err := provider.Register(ctx, auth.SystemActor, u)
		if apperr.IsKind(err, apperr.KindValidation) {
			fmt.Printf("skip %s: %s\n", u.Username, apperr.PublicMessage(err))
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("created %-14s %-12s %s\n", p.Username, p.Role, p.ID)
	}
	return seedComplaints(ctx, store, zl)
}

func seedComplaints(ctx context.Context, store storage.Storage, zl *zap.Logger) error {
	ids := make(map[string]string, len(demoUsers))
	for _, u := range demoUsers {
		p, err := store.GetProfileByUsername(ctx, u.Username)
		if err != nil {
			return fmt.Errorf("demo user %s: %w", u.Username, err)
		}
		ids[u.Username] = p.ID
	}
	student, admin, worker := ids["student1"], ids["admin1"], ids["maintenance1"]

	existing, err := store.ListComplaints(ctx, models.ComplaintFilter{StudentID: student})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		fmt.Printf("skip sample complaints: student1 already has %d\n", len(existing))
		return nil
	}

	notifier := notify.NewNotifier(store, notify.NewLogDispatcher(zl), nil, zl)
	defer notifier.Wait()
	svc := complaint.NewService(store, notifier, zl)

	for _, s := range sampleComplaints {
		c, err := svc.Create(ctx, student, s.NewComplaint)
		if err != nil {
			return fmt.Errorf("sample %q: %w", s.Title, err)
		}
		if s.status.RequiresAssignee() {
			if c, err = svc.Assign(ctx, c.ID, worker, admin); err != nil {
				return fmt.Errorf("sample %q: %w", s.Title, err)
			}
		}
		for _, next := range []models.Status{models.StatusInProgress, models.StatusResolved, models.StatusClosed} {
			if next.Rank() > s.status.Rank() {
				break
			}
			actor := worker
			if next == models.StatusClosed {
				actor = admin
			}
			if c, err = svc.UpdateStatus(ctx, c.ID, actor, next, nil); err != nil {
				return fmt.Errorf("sample %q: %w", s.Title, err)
			}
		}
		fmt.Printf("filed   %-30s %s\n", c.Title, c.Status)
	}
	return nil
}

func listUsers(ctx context.Context, provider *auth.Provider, role models.Role) error {
	users, err := provider.ListUsers(ctx, auth.SystemActor, role)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tNAME\tEMAIL")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.Name, u.Email)
	}
	return w.Flush()
}

// setStatus applies a status change as the named user, with the same rules
// as the API. Notifications go to the log.
func setStatus(ctx context.Context, store storage.Storage, zl *zap.Logger, complaintID string, status models.Status, actor string) error {
	p, err := store.GetProfileByUsername(ctx, actor)
	if err != nil {
		return err
	}
	notifier := notify.NewNotifier(store, notify.NewLogDispatcher(zl), nil, zl)
	defer notifier.Wait()

	c, err := complaint.NewService(store, notifier, zl).UpdateStatus(ctx, complaintID, p.ID, status, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Complaint %s is now %s.\n", c.ID, c.Status)
	return nil
}
