package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"agromarket/internal/api"
	"agromarket/internal/auth"
	"agromarket/internal/cart"
	"agromarket/internal/checkout"
	"agromarket/internal/config"
	"agromarket/internal/market"
	"agromarket/internal/payment"
	"agromarket/internal/profile"
	"agromarket/internal/session"
	"agromarket/internal/storage"
)

const usage = `Usage: agromarket <command> [flags]

Commands:
  login       log in with email/phone and password
  logout      clear the stored session
  whoami      show the current session
  register    create an account (verification code flow)
  verify      submit an email verification code
  products    list the marketplace catalogue
  cart        manage the cart: list, add, update, remove, clear
  checkout    place an order from the current cart
  orders      list or cancel your orders
  profile     update profile or change password

Global flags are read from the environment (.env supported):
  API_BASE_URL, GATEWAY_URL, STORAGE_DIR, HTTP_TIMEOUT,
  CART_DEV_FALLBACK, FALLBACK_EMAIL
`

// app is the composed client stack behind every subcommand.
type app struct {
	sessions *session.Store
	auth     *auth.Service
	cart     *cart.Service
	market   *market.Service
	profile  *profile.Service
	checkout *checkout.Orchestrator
}

func newApp(cfg *config.Config) (*app, error) {
	st, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(st)
	sessions.Hydrate()

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, sessions)

	var fallback cart.FallbackPolicy = cart.NoFallback{}
	if cfg.Cart.DevFallback {
		fallback = cart.DevFallback{Email: cfg.Cart.FallbackEmail}
	}
	cartSvc := cart.NewService(client, sessions, fallback)

	return &app{
		sessions: sessions,
		auth:     auth.NewService(client, sessions),
		cart:     cartSvc,
		market:   market.NewService(client, sessions),
		profile:  profile.NewService(client, sessions),
		checkout: checkout.New(client, cartSvc, payment.HTTPFactory(cfg.Gateway.URL, cfg.Gateway.Timeout)),
	}, nil
}

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fatal(err)
	}

	a, err := newApp(cfg)
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()
	command, args := os.Args[1], os.Args[2:]

	switch command {
	case "login":
		err = a.cmdLogin(ctx, args)
	case "logout":
		a.auth.Logout()
		fmt.Println("Logged out.")
	case "whoami":
		err = a.cmdWhoami()
	case "register":
		err = a.cmdRegister(ctx, args)
	case "verify":
		err = a.cmdVerify(ctx, args)
	case "products":
		err = a.cmdProducts(ctx, args)
	case "cart":
		err = a.cmdCart(ctx, args)
	case "checkout":
		err = a.cmdCheckout(ctx, args)
	case "orders":
		err = a.cmdOrders(ctx, args)
	case "profile":
		err = a.cmdProfile(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	identifier := fs.String("user", "", "email or phone number")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	sess, err := a.auth.Login(ctx, *identifier, *password)
	if err != nil {
		var unverified *auth.UnverifiedEmailError
		if errors.As(err, &unverified) {
			fmt.Printf("Your email %s is not verified yet. Run: agromarket verify -email %s -code <code>\n", unverified.Email, unverified.Email)
			return nil
		}
		return err
	}

	fmt.Printf("Logged in as %s (%s)\n", sess.User.Email, sess.Role)
	return nil
}

func (a *app) cmdWhoami() error {
	sess, ok := a.sessions.Current()
	if !ok {
		fmt.Println("Not logged in.")
		return nil
	}

	fmt.Printf("%s (%s)\n", sess.User.Email, sess.Role)
	if exp, ok := a.sessions.ExpiresAt(); ok {
		fmt.Printf("Token expires: %s\n", exp.Format(time.RFC3339))
	}
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	role := fs.String("role", "BUYER", "account role: BUYER, FARMER, ADMIN")
	username := fs.String("username", "", "username")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email address")
	phone := fs.String("phone", "", "phone number")
	password := fs.String("password", "", "password (min 6 characters)")
	_ = fs.Parse(args)

	parsed, ok := session.ParseRole(*role)
	if !ok {
		return fmt.Errorf("unknown role %q", *role)
	}

	result, err := a.auth.Register(ctx, parsed, auth.Registration{
		Username:    *username,
		FirstName:   *first,
		LastName:    *last,
		Email:       *email,
		PhoneNumber: *phone,
		Password:    *password,
	})
	if err != nil {
		return err
	}

	if result.RequiresVerification {
		fmt.Printf("Registration started. Check your email for a code, then run: agromarket verify -email %s -code <code>\n", *email)
	} else {
		fmt.Println("Registration complete. You can log in now.")
	}
	return nil
}

func (a *app) cmdVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	email := fs.String("email", "", "email address")
	code := fs.String("code", "", "verification code")
	role := fs.String("role", "BUYER", "account role")
	_ = fs.Parse(args)

	parsed, ok := session.ParseRole(*role)
	if !ok {
		return fmt.Errorf("unknown role %q", *role)
	}

	sess, err := a.auth.VerifyEmail(ctx, *email, *code, parsed)
	if err != nil {
		return err
	}

	fmt.Printf("Email verified. Logged in as %s (%s)\n", sess.User.Email, sess.Role)
	return nil
}

func (a *app) cmdProducts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products", flag.ExitOnError)
	district := fs.String("district", "", "filter by district")
	_ = fs.Parse(args)

	products, err := a.market.Products(ctx, *district)
	if err != nil {
		return err
	}

	if len(products) == 0 {
		fmt.Println("No products found.")
		return nil
	}
	for _, p := range products {
		fmt.Printf("%-18s %-22s Rs %8.2f  stock %d  (%s)\n", p.ID, p.ProductName, p.LatestPrice, p.TotalStock, p.District)
	}
	return nil
}

func (a *app) cmdCart(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("cart "+sub, flag.ExitOnError)
	productID := fs.String("product", "", "product id")
	quantity := fs.Int("quantity", 1, "quantity")
	_ = fs.Parse(rest)

	ok := true
	switch sub {
	case "list":
		items := a.cart.List(ctx)
		if msg := a.cart.Err(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		if len(items) == 0 {
			fmt.Println("Your cart is empty.")
			return nil
		}
		total := 0.0
		for _, item := range items {
			fmt.Printf("%-18s %-22s x%-3d Rs %8.2f\n", item.ProductID, item.ProductName, item.Quantity, item.TotalAmount)
			total += item.TotalAmount
		}
		fmt.Printf("Subtotal: Rs %.2f\n", total)
		return nil
	case "add":
		ok = a.cart.Add(ctx, *productID, *quantity)
	case "update":
		ok = a.cart.SetQuantity(ctx, *productID, *quantity)
	case "remove":
		ok = a.cart.Remove(ctx, *productID)
	case "clear":
		ok = a.cart.Clear(ctx)
	default:
		return fmt.Errorf("unknown cart subcommand %q", sub)
	}

	if !ok {
		return fmt.Errorf("%s", a.cart.Err())
	}
	fmt.Println("OK.")
	return nil
}

func (a *app) cmdCheckout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ExitOnError)
	name := fs.String("name", "", "full name")
	address := fs.String("address", "", "delivery address")
	city := fs.String("city", "", "delivery city")
	postal := fs.String("postal", "", "postal code")
	phone := fs.String("phone", "", "contact phone")
	instructions := fs.String("instructions", "", "delivery instructions")
	method := fs.String("method", "card", "payment method: card or cod")
	cardNumber := fs.String("card-number", "", "card number (card method)")
	cardMonth := fs.Int("card-month", 0, "card expiry month")
	cardYear := fs.Int("card-year", 0, "card expiry year")
	cardCVC := fs.String("card-cvc", "", "card CVC")
	_ = fs.Parse(args)

	if err := a.checkout.Begin(ctx); err != nil {
		if msg := a.checkout.Err(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return err
	}

	fmt.Printf("Subtotal Rs %.2f, shipping Rs %.2f, total Rs %.2f\n",
		a.checkout.Subtotal(), a.checkout.Shipping(), a.checkout.GrandTotal())

	details := checkout.ShippingDetails{
		FullName:     *name,
		Address:      *address,
		City:         *city,
		PostalCode:   *postal,
		PhoneNumber:  *phone,
		Instructions: *instructions,
	}

	paymentMethod := checkout.MethodCard
	if *method == "cod" {
		paymentMethod = checkout.MethodCashOnDelivery
	}

	if err := a.checkout.SubmitDetails(ctx, details, paymentMethod); err != nil {
		return fmt.Errorf("%s", a.checkout.Err())
	}

	if a.checkout.State() == checkout.StateSuccess {
		fmt.Printf("Order %s placed (cash on delivery).\n", a.checkout.OrderID())
		return nil
	}

	if a.checkout.MockMode() {
		fmt.Println("Backend has no live gateway configured; completing a MOCK payment.")
		if err := a.checkout.CompleteMockPayment(ctx); err != nil {
			return fmt.Errorf("%s", a.checkout.Err())
		}
	} else {
		card := payment.Card{Number: *cardNumber, ExpMonth: *cardMonth, ExpYear: *cardYear, CVC: *cardCVC}
		if err := a.checkout.ConfirmCardPayment(ctx, card); err != nil {
			return fmt.Errorf("%s", a.checkout.Err())
		}
	}

	fmt.Printf("Order %s placed and paid.\n", a.checkout.OrderID())
	return nil
}

func (a *app) cmdOrders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	cancel := fs.String("cancel", "", "cancel the order with this id")
	_ = fs.Parse(args)

	if *cancel != "" {
		if err := a.market.CancelOrder(ctx, *cancel); err != nil {
			return err
		}
		fmt.Printf("Order %s cancelled.\n", *cancel)
		return nil
	}

	orders, err := a.market.Orders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Println("No orders yet.")
		return nil
	}
	for _, o := range orders {
		fmt.Printf("%-12s Rs %8.2f  %-10s payment=%s  %s, %s\n",
			o.ID, o.TotalAmount, o.Status, o.PaymentStatus, o.DeliveryAddress, o.DeliveryCity)
	}
	return nil
}

func (a *app) cmdProfile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: agromarket profile {update|password} [flags]")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "update":
		fs := flag.NewFlagSet("profile update", flag.ExitOnError)
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		phone := fs.String("phone", "", "phone number")
		address := fs.String("address", "", "address")
		city := fs.String("city", "", "city")
		postal := fs.String("postal", "", "postal code")
		_ = fs.Parse(rest)

		err := a.profile.Update(ctx, profile.Profile{
			FirstName:   *first,
			LastName:    *last,
			PhoneNumber: *phone,
			Address:     *address,
			City:        *city,
			PostalCode:  *postal,
		})
		if err != nil {
			return err
		}
		fmt.Println("Profile updated.")
		return nil
	case "password":
		fs := flag.NewFlagSet("profile password", flag.ExitOnError)
		current := fs.String("current", "", "current password")
		next := fs.String("new", "", "new password")
		_ = fs.Parse(rest)

		if err := a.profile.ChangePassword(ctx, *current, *next); err != nil {
			return err
		}
		fmt.Println("Password changed.")
		return nil
	default:
		return fmt.Errorf("unknown profile subcommand %q", sub)
	}
}
