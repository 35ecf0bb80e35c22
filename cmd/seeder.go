package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/teamplan/scheduler/internal/calendar"
	"github.com/teamplan/scheduler/internal/room"
	"github.com/teamplan/scheduler/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{
				"notifications", "event_comments", "event_attachments",
				"event_participants", "events", "availability_slots",
				"calendar_members", "calendars", "room_access", "rooms",
			} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)

		admin := seedUser(db, "admin@teamplan.local", "Админ", user.RoleAdmin, string(hash))
		alice := seedUser(db, "alice@teamplan.local", "Алиса Иванова", user.RoleEmployee, string(hash))
		seedUser(db, "bob@teamplan.local", "Борис Петров", user.RoleEmployee, string(hash))

		for _, u := range []*user.User{admin, alice} {
			var count int64
			db.Model(&calendar.Calendar{}).Where("owner_id = ?", u.ID).Count(&count)
			if count == 0 {
				cal := calendar.Calendar{
					ID:       uuid.New(),
					OwnerID:  u.ID,
					Name:     "Рабочий календарь",
					Timezone: "Europe/Moscow",
				}
				if err := db.Create(&cal).Error; err != nil {
					log.Fatalf("failed to seed calendar: %v", err)
				}
				member := calendar.Member{
					CalendarID: cal.ID,
					UserID:     u.ID,
					Role:       calendar.MemberRoleOwner,
				}
				if err := db.Create(&member).Error; err != nil {
					log.Fatalf("failed to seed calendar member: %v", err)
				}
				fmt.Println("Seeded calendar for", u.Email)
			}
		}

		for _, name := range []string{"Большая переговорка", "Малая переговорка"} {
			var count int64
			db.Model(&room.Room{}).Where("name = ?", name).Count(&count)
			if count == 0 {
				r := room.Room{
					ID:       uuid.New(),
					Name:     name,
					Location: "5 этаж",
					Capacity: 8,
					IsActive: true,
				}
				if err := db.Create(&r).Error; err != nil {
					log.Fatalf("failed to seed room: %v", err)
				}
				fmt.Println("Seeded room:", name)
			}
		}

		fmt.Println("Seeding complete at", time.Now().Format(time.RFC3339))
	},
}

func seedUser(db *gorm.DB, email, name, role, hash string) *user.User {
	var existing user.User
	if err := db.Where("email = ?", email).First(&existing).Error; err == nil {
		fmt.Println("user already exists:", email)
		return &existing
	}
	u := user.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  &name,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(&u).Error; err != nil {
		log.Fatalf("failed to seed user %s: %v", email, err)
	}
	fmt.Println("Seeded user:", email)
	return &u
}
