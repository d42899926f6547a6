// jobctl 运维命令行：补投任务、查看与重置激活失败的档案
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"citizen-system/config"
	"citizen-system/internal/model"
	"citizen-system/internal/repository"
	"citizen-system/internal/service"
	dbPkg "citizen-system/pkg/db"
	"citizen-system/pkg/face"
	"citizen-system/pkg/logger"
	"citizen-system/pkg/queue"

	"github.com/spf13/cobra"
)

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	a.close()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// app 子命令共享的依赖，按需初始化
type app struct {
	cfg       *config.Config
	queue     *queue.NATS
	profiles  *repository.ProfileRepository
	operator  string
	timeout   time.Duration
	closeFunc []func()
}

func (a *app) close() {
	for i := len(a.closeFunc) - 1; i >= 0; i-- {
		a.closeFunc[i]()
	}
}

func (a *app) connectDB() error {
	db, err := dbPkg.InitDB(a.cfg.Database)
	if err != nil {
		return err
	}
	a.closeFunc = append(a.closeFunc, func() { _ = dbPkg.CloseDB() })
	a.profiles = repository.NewProfileRepository(db)
	return nil
}

func (a *app) connectQueue() error {
	q, err := queue.ConnectNATS(a.cfg.Queue)
	if err != nil {
		return err
	}
	a.closeFunc = append(a.closeFunc, q.Close)
	a.queue = q
	return nil
}

// registration 运维操作只用到档案仓储和队列，人脸服务用模拟实现占位
func (a *app) registration() (*service.RegistrationService, error) {
	return service.NewRegistrationService(a.profiles, face.NewMock(0), a.queue, a.cfg)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "jobctl",
		Short:        "公民注册系统运维工具",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.cfg = config.LoadConfig()
			a.cfg.Log.Console = true
			logger.InitLogger(a.cfg.Log)
		},
	}
	root.PersistentFlags().StringVar(&a.operator, "operator", os.Getenv("USER"), "操作人，写入簿记")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "命令超时")

	root.AddCommand(newEnqueueCmd(a), newFailedCmd(a), newResetCmd(a))
	return root
}

func newEnqueueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "enqueue <activation|moderation> <id>",
		Short:     "向队列补投一个任务",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(queue.KindActivation), string(queue.KindModeration)},
		RunE: func(cmd *cobra.Command, args []string) error {
			job := queue.NewJob(queue.Kind(args[0]), args[1])
			if err := job.Validate(); err != nil {
				return err
			}
			if err := a.connectQueue(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			if err := a.queue.Publish(ctx, job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已投递 %s 任务 %s -> %s\n", job.Kind, job.ID, job.TargetID)
			return nil
		},
	}
}

func newFailedCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "列出激活失败的档案",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connectDB(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			profiles, err := a.profiles.ListByStatus(ctx, model.StatusActivationFailed, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(profiles) == 0 {
				fmt.Fprintln(out, "没有激活失败的档案")
				return nil
			}
			for _, p := range profiles {
				meta := p.RegMeta.Data()
				fmt.Fprintf(out, "%s\t%s\tstep=%s\tretries=%d\t%s\n",
					p.ID, p.UpdatedAt.Format(time.RFC3339), meta.Step, p.RegRetryCount, meta.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "最多列出的条数")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <profile-id>",
		Short: "把激活失败的档案重置为 PAID 并重新投递激活任务",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.connectDB(); err != nil {
				return err
			}
			if err := a.connectQueue(); err != nil {
				return err
			}
			svc, err := a.registration()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()
			if err := svc.ResetFailed(ctx, args[0], a.operator); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "档案 %s 已重置并重新投递激活任务\n", args[0])
			return nil
		},
	}
}
