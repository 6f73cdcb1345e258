// Package client is a small HTTP client for the agent operator API, used by
// the shepherd CLI.
//
//	c := client.NewClient("127.0.0.1:7947")
//	report, err := c.Status(ctx)
//	if err != nil {
//		return err
//	}
//	fmt.Println(report.Status)
package client
