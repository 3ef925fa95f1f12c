package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const (
	sendTimeout = 10 * time.Second
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	host   string
	params []string
	watch  time.Duration
)

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

// call 通过websocket发送一个请求并等待响应
func call(c *websocket.Conn, id int, method string, args map[string]interface{}) (*jsonrpc.RPCResponse, error) {
	paramsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	req := jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      jsonrpc.JSONRPCIntID(id),
		Method:  method,
		Params:  paramsJSON,
	}

	c.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := c.WriteJSON(req); err != nil {
		return nil, err
	}
	c.SetReadDeadline(time.Now().Add(sendTimeout))
	resp := &jsonrpc.RPCResponse{}
	if err := c.ReadJSON(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// parseParams key=value，整数参数也按字符串发送，服务端用tmjson解析int64
func parseParams(kvs []string) (map[string]interface{}, error) {
	args := make(map[string]interface{}, len(kvs))
	for _, kv := range kvs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid param %q, expect key=value", kv)
		}
		args[parts[0]] = parts[1]
	}
	return args, nil
}

var rootCmd = &cobra.Command{
	Use:   "rpc_test [method]",
	Short: "Call a dpos node rpc method over websocket",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := "consensus_state"
		if len(args) == 1 {
			method = args[0]
		}
		rpcArgs, err := parseParams(params)
		if err != nil {
			return err
		}

		c, _, err := connect(host)
		if err != nil {
			return err
		}
		defer c.Close()

		for id := 1; ; id++ {
			resp, err := call(c, id, method, rpcArgs)
			if err != nil {
				return err
			}
			if resp.Error != nil {
				return resp.Error
			}
			fmt.Println(string(resp.Result))
			if watch <= 0 {
				return nil
			}
			time.Sleep(watch)
		}
	},
}

func main() {
	rootCmd.Flags().StringVar(&host, "host", "127.0.0.1:26657", "rpc地址")
	rootCmd.Flags().StringSliceVarP(&params, "param", "p", nil, "请求参数 key=value")
	rootCmd.Flags().DurationVar(&watch, "watch", 0, "大于0时按间隔重复请求")
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
