package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/alextreichler/storefront/internal/config"
	"github.com/alextreichler/storefront/internal/models"
	"github.com/alextreichler/storefront/internal/store"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const usage = "expected 'add-user', 'seed-products' or 'migrate' subcommand"

func main() {
	addUserCmd := flag.NewFlagSet("add-user", flag.ExitOnError)
	email := addUserCmd.String("email", "", "Email (login) for the new user")
	password := addUserCmd.String("password", "", "Password for the new user")
	first := addUserCmd.String("first", "", "First name")
	last := addUserCmd.String("last", "", "Last name")
	admin := addUserCmd.Bool("admin", false, "Grant the ADMIN role")

	seedCmd := flag.NewFlagSet("seed-products", flag.ExitOnError)
	seedFile := seedCmd.String("file", "products.yaml", "YAML file with a top-level 'products' list")

	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add-user":
		addUserCmd.Parse(os.Args[2:])
		if *email == "" || *password == "" || *first == "" || *last == "" {
			fmt.Println("email, password, first and last are required")
			addUserCmd.PrintDefaults()
			os.Exit(1)
		}
		role := models.RoleUser
		if *admin {
			role = models.RoleAdmin
		}
		createUser(*email, *password, *first, *last, role)
	case "seed-products":
		seedCmd.Parse(os.Args[2:])
		seedProducts(*seedFile)
	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		db := openStore()
		defer db.Close()
		fmt.Println("Migrations applied.")
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

// openStore connects with the server's configuration and brings the schema up to date.
func openStore() *store.Store {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	db, err := store.NewStore(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	// Ensure tables exist if running cli before server
	if err := db.Migrate(context.Background()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func createUser(email, password, first, last string, role models.Role) {
	db := openStore()
	defer db.Close()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	u := &models.User{
		Email:     email,
		Password:  string(hashedPassword),
		FirstName: first,
		LastName:  last,
		Role:      role,
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("User '%s' created successfully (id %d, role %s).\n", u.Email, u.ID, u.Role)
}

type seedFile struct {
	Products []struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Price       string `yaml:"price"`
		Category    string `yaml:"category"`
		Image       string `yaml:"image"`
		Stock       int    `yaml:"stock"`
	} `yaml:"products"`
}

func seedProducts(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		log.Fatalf("Failed to parse %s: %v", path, err)
	}

	products := make([]*models.Product, 0, len(sf.Products))
	for i, sp := range sf.Products {
		price, err := decimal.NewFromString(sp.Price)
		if err != nil || price.IsNegative() {
			log.Fatalf("Product %d (%q): invalid price %q", i, sp.Name, sp.Price)
		}
		if len(sp.Name) < 3 || len(sp.Description) < 10 || sp.Stock < 0 {
			log.Fatalf("Product %d (%q): name needs 3+ chars, description 10+ chars, stock >= 0", i, sp.Name)
		}
		products = append(products, &models.Product{
			Name:        sp.Name,
			Description: sp.Description,
			Price:       price,
			Category:    sp.Category,
			Image:       sp.Image,
			Stock:       sp.Stock,
		})
	}

	db := openStore()
	defer db.Close()

	ctx := context.Background()
	err = db.WithTx(ctx, func(q *store.Queries) error {
		for _, p := range products {
			if err := q.CreateProduct(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}
	fmt.Printf("Seeded %d products from %s.\n", len(products), path)
}
