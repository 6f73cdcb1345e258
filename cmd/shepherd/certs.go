package main

import (
	"fmt"

	"github.com/cuemby/shepherd/pkg/security"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage peer channel certificates",
}

var certsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a fleet root CA",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		fleet, _ := cmd.Flags().GetString("fleet")

		ca, err := security.NewCertAuthority(fleet)
		if err != nil {
			return err
		}
		if err := ca.Save(dir); err != nil {
			return err
		}

		fmt.Printf("✓ Fleet CA created in %s\n", dir)
		fmt.Printf("  Expires: %s\n", ca.Certificate().NotAfter.Format("2006-01-02"))
		fmt.Println("  Keep ca.key off the nodes.")
		return nil
	},
}

var certsIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a node certificate signed by the fleet CA",
	RunE: func(cmd *cobra.Command, args []string) error {
		caDir, _ := cmd.Flags().GetString("ca-dir")
		dir, _ := cmd.Flags().GetString("dir")
		node, _ := cmd.Flags().GetString("node")
		hosts, _ := cmd.Flags().GetStringSlice("host")

		if _, _, err := types.ParseNodeName(node); err != nil {
			return err
		}
		if len(hosts) == 0 {
			return fmt.Errorf("at least one --host is required")
		}

		ca, err := security.LoadCertAuthority(caDir)
		if err != nil {
			return err
		}
		cert, err := ca.IssueNodeCertificate(node, hosts)
		if err != nil {
			return err
		}
		if err := security.SaveCertToFile(cert, dir); err != nil {
			return err
		}
		if err := security.SaveCACertToFile(ca.Certificate().Raw, dir); err != nil {
			return err
		}

		fmt.Printf("✓ Certificate for %s written to %s\n", node, dir)
		fmt.Printf("  Expires: %s\n", cert.Leaf.NotAfter.Format("2006-01-02"))
		return nil
	},
}

func init() {
	certsInitCmd.Flags().String("dir", "./fleet-ca", "Directory for ca.crt and ca.key")
	certsInitCmd.Flags().String("fleet", "shepherd", "Fleet (application) name")

	certsIssueCmd.Flags().String("ca-dir", "./fleet-ca", "Directory holding ca.crt and ca.key")
	certsIssueCmd.Flags().String("dir", "/etc/shepherd/tls", "Output directory for the node certificate")
	certsIssueCmd.Flags().String("node", "", "Node name (<app>/<ordinal>)")
	certsIssueCmd.Flags().StringSlice("host", nil, "Host name or IP peers dial the node on (repeatable)")
	_ = certsIssueCmd.MarkFlagRequired("node")

	certsCmd.AddCommand(certsInitCmd)
	certsCmd.AddCommand(certsIssueCmd)
}
