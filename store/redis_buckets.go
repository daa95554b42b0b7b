package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/circlefeed/models"
)

// Key layout, all under the configured prefix:
//
//	bucket:{kind}:{owner}:months          zset  month -> yyyymm, newest-first index
//	bucket:{kind}:{owner}:{month}:posts   list  post ids in delivery order
//	copy:{ref}                            string post copy without comments
//	copy:{ref}:comments                   list  retained comments, oldest first
//	copy:{ref}:seen                       set   comment ids ever delivered
//	post:{id}:copies                      set   refs of every copy of the post
//	shown                                 zset  ref -> comments shown
var (
	appendPostScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then return 0 end
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('SET', KEYS[3], ARGV[3])
redis.call('ZADD', KEYS[4], ARGV[5], ARGV[4])
local n = tonumber(ARGV[6])
for i = 0, n - 1 do
  redis.call('SADD', KEYS[7], ARGV[7 + i * 2])
  redis.call('RPUSH', KEYS[6], ARGV[8 + i * 2])
end
redis.call('ZADD', KEYS[5], n, ARGV[1])
return 1`)

	appendCommentScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 then return -1 end
if redis.call('SADD', KEYS[2], ARGV[2]) == 0 then return 0 end
redis.call('RPUSH', KEYS[3], ARGV[3])
redis.call('ZINCRBY', KEYS[4], 1, ARGV[1])
return 1`)

	popOldestScript = redis.NewScript(`
local v = redis.call('LPOP', KEYS[1])
if not v then return 0 end
redis.call('ZINCRBY', KEYS[2], -1, ARGV[1])
return 1`)
)

// RedisBuckets is a BucketStore on Redis. Every multi-key mutation runs as a
// Lua script so the counter and the comment list never diverge.
type RedisBuckets struct {
	rc     *redis.Client
	prefix string
}

func NewRedisBuckets(rc *redis.Client, prefix string) *RedisBuckets {
	if prefix == "" {
		prefix = "circlefeed"
	}
	return &RedisBuckets{rc: rc, prefix: prefix}
}

func (r *RedisBuckets) AppendPost(ctx context.Context, kind models.BucketKind, owner uint, month string, cp models.PostCopy) error {
	keys, args, err := r.appendPostArgs(kind, owner, month, cp)
	if err != nil {
		return err
	}
	return appendPostScript.Run(ctx, r.rc, keys, args...).Err()
}

func (r *RedisBuckets) AppendPosts(ctx context.Context, kind models.BucketKind, owners []uint, month string, cp models.PostCopy) error {
	if len(owners) == 0 {
		return nil
	}
	var result *multierror.Error
	type queued struct {
		keys []string
		args []interface{}
	}
	batch := make([]queued, len(owners))
	for i, owner := range owners {
		keys, args, err := r.appendPostArgs(kind, owner, month, cp)
		if err != nil {
			result = multierror.Append(result, &DeliveryError{Owner: owner, Err: err})
			continue
		}
		batch[i] = queued{keys: keys, args: args}
	}
	if result != nil {
		return result
	}

	// Pipelined scripts go by SHA only; an owner that hit NOSCRIPT did not run
	// and is resent through Run, which loads the source.
	cmds := make([]*redis.Cmd, len(owners))
	_, _ = r.rc.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, q := range batch {
			cmds[i] = appendPostScript.EvalSha(ctx, pipe, q.keys, q.args...)
		}
		return nil
	})
	for i, cmd := range cmds {
		err := cmd.Err()
		if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
			err = appendPostScript.Run(ctx, r.rc, batch[i].keys, batch[i].args...).Err()
		}
		if err != nil {
			result = multierror.Append(result, &DeliveryError{Owner: owners[i], Err: err})
		}
	}
	return result.ErrorOrNil()
}

func (r *RedisBuckets) Months(ctx context.Context, kind models.BucketKind, owner uint) ([]string, error) {
	return r.rc.ZRevRange(ctx, r.monthsKey(kind, owner), 0, -1).Result()
}

func (r *RedisBuckets) GetBucket(ctx context.Context, kind models.BucketKind, owner uint, month string) (*models.Bucket, error) {
	ids, err := r.rc.LRange(ctx, r.postsKey(kind, owner, month), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}

	type pending struct {
		ref      models.CopyRef
		body     *redis.StringCmd
		comments *redis.StringSliceCmd
		shown    *redis.FloatCmd
	}
	reads := make([]pending, len(ids))
	_, err = r.rc.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			ref := models.CopyRef{Kind: kind, Owner: owner, Month: month, PostID: id}
			reads[i] = pending{
				ref:      ref,
				body:     pipe.Get(ctx, r.copyKey(ref)),
				comments: pipe.LRange(ctx, r.commentsKey(ref), 0, -1),
				shown:    pipe.ZScore(ctx, r.shownKey(), ref.String()),
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	bucket := &models.Bucket{Kind: kind, Owner: owner, Month: month, Posts: make([]models.PostCopy, 0, len(ids))}
	for _, rd := range reads {
		raw, err := rd.body.Bytes()
		if err != nil {
			return nil, fmt.Errorf("load copy %s: %w", rd.ref, err)
		}
		var cp models.PostCopy
		if err := json.Unmarshal(raw, &cp); err != nil {
			return nil, fmt.Errorf("decode copy %s: %w", rd.ref, err)
		}
		for _, c := range rd.comments.Val() {
			var snap models.CommentSnapshot
			if err := json.Unmarshal([]byte(c), &snap); err != nil {
				return nil, fmt.Errorf("decode comment of %s: %w", rd.ref, err)
			}
			cp.Comments = append(cp.Comments, snap)
		}
		cp.CommentsShown = int(rd.shown.Val())
		bucket.Posts = append(bucket.Posts, cp)
	}
	return bucket, nil
}

func (r *RedisBuckets) FindCopies(ctx context.Context, postID string) ([]models.CopyRef, error) {
	members, err := r.rc.SMembers(ctx, r.copiesKey(postID)).Result()
	if err != nil {
		return nil, err
	}
	return parseRefs(members)
}

func (r *RedisBuckets) AppendComment(ctx context.Context, ref models.CopyRef, c models.CommentSnapshot) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	keys := []string{r.copiesKey(ref.PostID), r.seenKey(ref), r.commentsKey(ref), r.shownKey()}
	n, err := appendCommentScript.Run(ctx, r.rc, keys, ref.String(), strconv.FormatUint(uint64(c.ID), 10), raw).Int()
	if err != nil {
		return err
	}
	if n < 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisBuckets) FindOverflow(ctx context.Context, limit int) ([]models.CopyRef, error) {
	members, err := r.rc.ZRangeByScore(ctx, r.shownKey(), &redis.ZRangeBy{
		Min: "(" + strconv.Itoa(limit),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	return parseRefs(members)
}

func (r *RedisBuckets) PopOldestComment(ctx context.Context, ref models.CopyRef) error {
	keys := []string{r.commentsKey(ref), r.shownKey()}
	return popOldestScript.Run(ctx, r.rc, keys, ref.String()).Err()
}

func (r *RedisBuckets) appendPostArgs(kind models.BucketKind, owner uint, month string, cp models.PostCopy) ([]string, []interface{}, error) {
	score, err := models.MonthScore(month)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid month %q: %w", month, err)
	}
	comments := cp.Comments
	body := cp
	body.Comments = nil
	body.CommentsShown = 0
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, nil, err
	}

	ref := models.CopyRef{Kind: kind, Owner: owner, Month: month, PostID: cp.PostID}
	keys := []string{
		r.copiesKey(cp.PostID),
		r.postsKey(kind, owner, month),
		r.copyKey(ref),
		r.monthsKey(kind, owner),
		r.shownKey(),
		r.commentsKey(ref),
		r.seenKey(ref),
	}
	args := []interface{}{ref.String(), cp.PostID, raw, month, score, len(comments)}
	for _, c := range comments {
		rawComment, err := json.Marshal(c)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, strconv.FormatUint(uint64(c.ID), 10), rawComment)
	}
	return keys, args, nil
}

func (r *RedisBuckets) monthsKey(kind models.BucketKind, owner uint) string {
	return fmt.Sprintf("%s:bucket:%s:%d:months", r.prefix, kind, owner)
}

func (r *RedisBuckets) postsKey(kind models.BucketKind, owner uint, month string) string {
	return fmt.Sprintf("%s:bucket:%s:%d:%s:posts", r.prefix, kind, owner, month)
}

func (r *RedisBuckets) copyKey(ref models.CopyRef) string {
	return r.prefix + ":copy:" + ref.String()
}

func (r *RedisBuckets) commentsKey(ref models.CopyRef) string {
	return r.copyKey(ref) + ":comments"
}

func (r *RedisBuckets) seenKey(ref models.CopyRef) string {
	return r.copyKey(ref) + ":seen"
}

func (r *RedisBuckets) copiesKey(postID string) string {
	return r.prefix + ":post:" + postID + ":copies"
}

func (r *RedisBuckets) shownKey() string {
	return r.prefix + ":shown"
}

func parseRefs(members []string) ([]models.CopyRef, error) {
	refs := make([]models.CopyRef, 0, len(members))
	for _, m := range members {
		ref, err := models.ParseCopyRef(m)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs, nil
}
