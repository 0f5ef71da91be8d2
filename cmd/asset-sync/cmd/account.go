package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"go-asset-sync/internal/config"
	"go-asset-sync/internal/models"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the marketplace session and account details",
}

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Log in and store the access token in the config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear the stored token",
	RunE:  runLogout,
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the credit balances",
	RunE:  runBalance,
}

var subscriptionCmd = &cobra.Command{
	Use:   "subscription",
	Short: "Show the current subscription plan",
	RunE:  runSubscription,
}

func init() {
	accountCmd.AddCommand(loginCmd)
	accountCmd.AddCommand(logoutCmd)
	accountCmd.AddCommand(balanceCmd)
	accountCmd.AddCommand(subscriptionCmd)
	rootCmd.AddCommand(accountCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	var email string
	if len(args) == 1 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	client := newApiClient()
	resp := client.LogIn(email, string(passwordBytes))
	if !resp.OK {
		return fmt.Errorf("login failed: %s", resp.Error)
	}

	globalConfig.AccessToken = client.Token()
	if err := config.SaveToken(cfgFile, client.Token()); err != nil {
		log.WithError(err).Warn("Logged in, but could not persist the token")
	}
	fmt.Println("Logged in.")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	client := newApiClient()
	resp := client.LogOut()
	if !resp.OK {
		// The local token is gone regardless.
		log.Debugf("Server logout failed: %s", resp.Error)
	}
	if err := config.SaveToken(cfgFile, ""); err != nil {
		log.WithError(err).Warn("Could not clear the stored token")
	}
	fmt.Println("Logged out.")
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	client := newApiClient()
	resp := client.GetUserBalance()
	if !resp.OK {
		return fmt.Errorf("fetching balance: %s", resp.Error)
	}
	var balance models.BalanceResponse
	if err := resp.Decode(&balance); err != nil {
		return fmt.Errorf("decoding balance: %w", err)
	}
	fmt.Printf("Subscription credits: %d\n", balance.SubscriptionBalance)
	fmt.Printf("On-demand credits:    %d\n", balance.OnDemandBalance)
	return nil
}

func runSubscription(cmd *cobra.Command, args []string) error {
	client := newApiClient()
	resp := client.GetSubscriptionDetails()
	if !resp.OK {
		return fmt.Errorf("fetching subscription: %s", resp.Error)
	}
	var sub models.SubscriptionResponse
	if err := resp.Decode(&sub); err != nil {
		return fmt.Errorf("decoding subscription: %w", err)
	}
	if sub.Plan == "" {
		fmt.Println("No active subscription.")
		return nil
	}
	fmt.Printf("Plan:              %s\n", sub.Plan)
	fmt.Printf("Credits per month: %d\n", sub.CreditsPerMth)
	if sub.Paused {
		fmt.Println("Status:            paused")
	} else if sub.NextCredits != "" {
		fmt.Printf("Next credits:      %s\n", sub.NextCredits)
	}
	if sub.PeriodEnd != "" {
		fmt.Printf("Current term ends: %s\n", sub.PeriodEnd)
	}
	return nil
}
